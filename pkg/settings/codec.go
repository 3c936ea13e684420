package settings

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"

	"github.com/glorpus-work/plugdex/pkg/errutils"
)

// PackingVersion tags every packed blob.
const PackingVersion = "REPO_V001"

const lengthDigits = 16

// ErrUnknownPackingVersion is returned for blobs without a known packing tag.
var ErrUnknownPackingVersion = fmt.Errorf("%w: unknown packing version", errutils.ErrParse)

// Pack encodes any JSON value as a single settings string:
// the packing tag, a 16 digit payload length and base64(zlib(json)).
func Pack(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", errutils.Wrapf(errutils.ErrTypeMismatch, "value can not be packed: %v", err)
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return "", errutils.Wrap(err, "failed to compress value")
	}
	if err := zw.Close(); err != nil {
		return "", errutils.Wrap(err, "failed to compress value")
	}

	payload := base64.StdEncoding.EncodeToString(buf.Bytes())
	return fmt.Sprintf("%s%0*d%s", PackingVersion, lengthDigits, len(payload), payload), nil
}

// Unpack decodes a string produced by Pack into out. The declared length is
// checked before anything is decompressed.
func Unpack(s string, out any) error {
	if !strings.HasPrefix(s, PackingVersion) {
		return ErrUnknownPackingVersion
	}
	rest := s[len(PackingVersion):]
	if len(rest) < lengthDigits {
		return errutils.Wrap(errutils.ErrParse, "packed data has no length field")
	}

	lengthRaw, payload := rest[:lengthDigits], rest[lengthDigits:]
	if strings.TrimLeft(lengthRaw, "0123456789") != "" {
		return errutils.Wrap(errutils.ErrParse, "packed data does not have a numeric length field")
	}
	length, err := strconv.Atoi(lengthRaw)
	if err != nil {
		return errutils.Wrapf(errutils.ErrParse, "packed data length: %v", err)
	}
	if length != len(payload) {
		return errutils.Wrapf(errutils.ErrParse, "declared length %d does not match actual length %d", length, len(payload))
	}

	compressed, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return errutils.Wrapf(errutils.ErrParse, "packed data is not base64: %v", err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return errutils.Wrapf(errutils.ErrParse, "packed data is not zlib: %v", err)
	}
	defer func() { _ = zr.Close() }()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return errutils.Wrapf(errutils.ErrParse, "failed to decompress packed data: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errutils.Wrapf(errutils.ErrParse, "packed data is not JSON: %v", err)
	}
	return nil
}
