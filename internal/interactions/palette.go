package interactions

import "strings"

// PaletteEntry is one selectable reaction emoji with its search name.
type PaletteEntry struct {
	Emoji string `json:"emoji"`
	Name  string `json:"name"`
}

var palette = []PaletteEntry{
	{Emoji: "❤️", Name: "love heart"},
	{Emoji: "😂", Name: "laugh"},
	{Emoji: "😍", Name: "love eyes"},
	{Emoji: "🔥", Name: "fire hot"},
	{Emoji: "👍", Name: "thumbs up good"},
	{Emoji: "😢", Name: "sad cry"},
	{Emoji: "😡", Name: "angry mad"},
	{Emoji: "🤔", Name: "thinking hmm"},
	{Emoji: "👏", Name: "clap applause"},
	{Emoji: "🎉", Name: "party celebrate"},
	{Emoji: "✨", Name: "sparkle shine"},
	{Emoji: "💯", Name: "hundred perfect"},
}

// Palette returns the reaction palette in display order.
func Palette() []PaletteEntry {
	entries := make([]PaletteEntry, len(palette))
	copy(entries, palette)
	return entries
}

// SearchPalette filters the palette by case-insensitive name substring. An empty query
// returns the whole palette.
func SearchPalette(query string) []PaletteEntry {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return Palette()
	}
	matches := make([]PaletteEntry, 0, len(palette))
	for _, entry := range palette {
		if strings.Contains(entry.Name, needle) {
			matches = append(matches, entry)
		}
	}
	return matches
}

// InPalette reports whether value is one of the palette emoji.
func InPalette(value string) bool {
	for _, entry := range palette {
		if entry.Emoji == value {
			return true
		}
	}
	return false
}
