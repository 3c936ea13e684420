package cli

import "github.com/jedib0t/go-pretty/v6/table"

// Default values for CLI output.
const (
	// MaxDescriptionLength is the maximum length of a plugin description to display.
	MaxDescriptionLength = 50
	// MaxURLLength is the maximum length of a repository url in listings.
	MaxURLLength = 60
)

// tableStyle is shared by every listing.
func tableStyle() table.Style {
	style := table.StyleLight
	style.Options.DrawBorder = false
	return style
}
