package config

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/glorpus-work/plugdex/pkg/errutils"
)

// SetValue sets a configuration value by key. Keys are the yaml names of the
// settings section, or "host.<name>" for the host section.
func (c *Config) SetValue(key, value string) error {
	field, err := c.field(key)
	if err != nil {
		return err
	}
	previous := reflect.New(field.Type()).Elem()
	previous.Set(field)
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: invalid boolean value for %s: %s", errutils.ErrInvalidValue, key, value)
		}
		field.SetBool(b)
	case reflect.Int64:
		if field.Type() != reflect.TypeOf(time.Duration(0)) {
			return fmt.Errorf("%w: %s can not be set", errutils.ErrNotImplemented, key)
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: invalid duration for %s: %s", errutils.ErrInvalidValue, key, value)
		}
		field.SetInt(int64(d))
	case reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: invalid number for %s: %s", errutils.ErrInvalidValue, key, value)
		}
		field.SetInt(int64(n))
	case reflect.Slice:
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("%w: %s can not be set", errutils.ErrNotImplemented, key)
	}
	if err := c.Validate(); err != nil {
		field.Set(previous)
		return err
	}
	return nil
}

// GetValue returns the value of key as a string.
func (c *Config) GetValue(key string) (string, error) {
	field, err := c.field(key)
	if err != nil {
		return "", err
	}
	return formatValue(field), nil
}

func (c *Config) field(key string) (reflect.Value, error) {
	section := reflect.ValueOf(&c.Settings).Elem()
	name := key
	if rest, ok := strings.CutPrefix(key, "host."); ok {
		section = reflect.ValueOf(&c.Host).Elem()
		name = rest
	}
	for i := 0; i < section.NumField(); i++ {
		if yamlKey(section.Type().Field(i)) == name {
			return section.Field(i), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("%w: unknown configuration key: %s", errutils.ErrNotFound, key)
}

func yamlKey(f reflect.StructField) string {
	return strings.Split(f.Tag.Get("yaml"), ",")[0]
}

func formatValue(v reflect.Value) string {
	switch v.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int64:
		if v.Type() == reflect.TypeOf(time.Duration(0)) {
			return time.Duration(v.Int()).String()
		}
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Int:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Slice:
		parts := make([]string, v.Len())
		for i := range parts {
			parts[i] = fmt.Sprint(v.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	case reflect.String:
		return v.String()
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// ToMap returns every settable key with its value.
// This is useful for displaying the configuration.
func (c *Config) ToMap() map[string]string {
	result := make(map[string]string)
	for prefix, section := range map[string]reflect.Value{
		"host.": reflect.ValueOf(c.Host),
		"":      reflect.ValueOf(c.Settings),
	} {
		for i := 0; i < section.NumField(); i++ {
			key := yamlKey(section.Type().Field(i))
			if key == "" || key == "-" {
				continue
			}
			result[prefix+key] = formatValue(section.Field(i))
		}
	}
	return result
}

// Keys returns the keys of ToMap in sorted order.
func (c *Config) Keys() []string {
	m := c.ToMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
