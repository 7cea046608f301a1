package track

import "strings"

const (
	// RootID is the root of the browse hierarchy for allowed clients.
	RootID = "__ROOT__"
	// EmptyRootID is handed to clients the gatekeeper denies. It has no children.
	EmptyRootID = "__EMPTY_ROOT__"
	// GenresID groups tracks by genre.
	GenresID = "__BY_GENRE__"

	categorySeparator = "/"
	unknownGenre      = "Unknown"
)

// GenreID returns the media id of the grouping node for a genre.
func GenreID(genre string) string {
	return GenresID + categorySeparator + NormalizeGenre(genre)
}

// GenreFromID extracts the genre from a genre node id.
func GenreFromID(id string) (string, bool) {
	prefix := GenresID + categorySeparator
	if !strings.HasPrefix(id, prefix) || len(id) == len(prefix) {
		return "", false
	}
	return id[len(prefix):], true
}

// NormalizeGenre maps an empty genre to the placeholder genre.
func NormalizeGenre(genre string) string {
	genre = strings.TrimSpace(genre)
	if genre == "" {
		return unknownGenre
	}
	return genre
}
