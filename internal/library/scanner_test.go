package library

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func writeBookFixture(t *testing.T, root string, rel string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
	return path
}

func TestScanner_BookArtifactFlags(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "audiobooks")
	mediaPath := writeBookFixture(t, root, filepath.Join("Jane Doe", "The Long Road.m4b"))

	artifactDir := filepath.Join(root, "Jane Doe", ".stt", "The Long Road.m4b")
	require.NoError(t, os.MkdirAll(artifactDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(artifactDir, "chapter-0.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(artifactDir, "chapter-2.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(artifactDir, "chapter-0.translation-es.json"), []byte("{}"), 0o644))
	// Temp files from interrupted writes are not artifacts.
	require.NoError(t, os.WriteFile(filepath.Join(artifactDir, "chapter-1.json.tmp-123"), []byte("{"), 0o644))

	scanner := NewScanner(
		[]SourceConfig{{ID: "main", Name: "Main", Path: root}},
		language.Spanish,
	)

	lib, err := scanner.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, lib.Sources, 1)
	assert.Equal(t, 1, lib.Sources[0].BookCount)
	require.Len(t, lib.Books, 1)

	book := lib.Books[0]
	assert.Equal(t, "Jane Doe", book.Author)
	assert.Equal(t, "The Long Road", book.Title)
	assert.Equal(t, mediaPath, book.MediaPath)
	assert.Equal(t, filepath.Join("Jane Doe", "The Long Road.m4b"), book.RelPath)
	assert.True(t, book.Artifacts.HasTranscript)
	assert.Equal(t, []int{0, 2}, book.Artifacts.TranscribedChapters)
	assert.Equal(t, []string{"es"}, book.Artifacts.TranslationLanguages)
	assert.True(t, book.Artifacts.HasTargetTranslation)
}

func TestScanner_TargetTranslationMatchesBaseLanguage(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "audiobooks")
	writeBookFixture(t, root, "book.m4b")

	artifactDir := filepath.Join(root, ".stt", "book.m4b")
	require.NoError(t, os.MkdirAll(artifactDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(artifactDir, "chapter-0.translation-fr.json"), []byte("{}"), 0o644))

	scanner := NewScanner(
		[]SourceConfig{{ID: "main", Name: "Main", Path: root}},
		language.Spanish,
	)
	lib, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, lib.Books, 1)
	assert.False(t, lib.Books[0].Artifacts.HasTargetTranslation)
	assert.Equal(t, []string{"fr"}, lib.Books[0].Artifacts.TranslationLanguages)

	require.NoError(t, scanner.UpdateTargetLanguage("fr"))
	lib, err = scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.True(t, lib.Books[0].Artifacts.HasTargetTranslation)
}

func TestScanner_BookDirectlyInRootHasNoAuthor(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "audiobooks")
	writeBookFixture(t, root, "standalone.mp3")

	scanner := NewScanner(
		[]SourceConfig{{ID: "main", Name: "Main", Path: root}},
		language.Spanish,
	)
	lib, err := scanner.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, lib.Books, 1)
	assert.Equal(t, "", lib.Books[0].Author)
	assert.Equal(t, "standalone", lib.Books[0].Title)
}

func TestScanner_IgnoresNonAudioAndArtifactDirs(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "audiobooks")
	writeBookFixture(t, root, filepath.Join("shelf", "book.m4b"))

	require.NoError(t, os.WriteFile(filepath.Join(root, "shelf", "cover.jpg"), []byte("img"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "shelf", "notes.txt"), []byte("txt"), 0o644))
	// An mp3 inside .stt must not surface as a book.
	sttDir := filepath.Join(root, "shelf", ".stt", "book.m4b")
	require.NoError(t, os.MkdirAll(sttDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sttDir, "stray.mp3"), []byte("audio"), 0o644))

	scanner := NewScanner(
		[]SourceConfig{{ID: "main", Name: "Main", Path: root}},
		language.Spanish,
	)
	lib, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, lib.Books, 1)
	assert.Equal(t, "book", lib.Books[0].Title)
}

func TestScanner_MetadataProberEnrichesBooks(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "audiobooks")
	writeBookFixture(t, root, "untagged.m4b")

	scanner := NewScanner(
		[]SourceConfig{{ID: "main", Name: "Main", Path: root}},
		language.Spanish,
		WithMetadataProber(func(_ context.Context, mediaPath string) (Metadata, error) {
			return Metadata{
				Title:        "Tagged Title",
				Author:       "Tagged Author",
				Duration:     3600.5,
				ChapterCount: 12,
			}, nil
		}),
	)
	lib, err := scanner.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, lib.Books, 1)
	book := lib.Books[0]
	assert.Equal(t, "Tagged Title", book.Title)
	assert.Equal(t, "Tagged Author", book.Author)
	assert.Equal(t, 3600.5, book.Duration)
	assert.Equal(t, 12, book.ChapterCount)
}

func TestScanner_ProbeFailureKeepsFilenameMetadata(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "audiobooks")
	writeBookFixture(t, root, filepath.Join("Jane Doe", "Fallback.m4b"))

	scanner := NewScanner(
		[]SourceConfig{{ID: "main", Name: "Main", Path: root}},
		language.Spanish,
		WithMetadataProber(func(context.Context, string) (Metadata, error) {
			return Metadata{}, os.ErrPermission
		}),
	)
	lib, err := scanner.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, lib.Books, 1)
	assert.Equal(t, "Fallback", lib.Books[0].Title)
	assert.Equal(t, "Jane Doe", lib.Books[0].Author)
}

func TestCleanBookTitle(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Jane Doe - The Long Road (Unabridged) [64kbps]", "The Long Road"},
		{"The Long Road", "The Long Road"},
		{"Author - Title", "Title"},
		{"Title (Audiobook)", "Title"},
		{"Title [mp3]", "Title"},
		{"plain-name", "plain-name"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanBookTitle(tt.input))
		})
	}
}

func TestBookID_RoundTrip(t *testing.T) {
	id := EncodeBookID("main", filepath.Join("Jane Doe", "The Long Road.m4b"))
	assert.NotContains(t, id, "/")
	assert.NotContains(t, id, "|")

	sourceID, relPath, err := DecodeBookID(id)
	require.NoError(t, err)
	assert.Equal(t, "main", sourceID)
	assert.Equal(t, filepath.Join("Jane Doe", "The Long Road.m4b"), relPath)
}

func TestDecodeBookID_Malformed(t *testing.T) {
	for _, input := range []string{"", "!!!", "bm9zZXBhcmF0b3I"} {
		_, _, err := DecodeBookID(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestScanner_Find(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "audiobooks")
	writeBookFixture(t, root, "book.m4b")

	scanner := NewScanner(
		[]SourceConfig{{ID: "main", Name: "Main", Path: root}},
		language.Spanish,
	)

	book, err := scanner.Find(context.Background(), EncodeBookID("main", "book.m4b"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "book.m4b"), book.MediaPath)

	_, err = scanner.Find(context.Background(), EncodeBookID("main", "missing.m4b"))
	require.Error(t, err)
}

func TestScanner_Scan_UsesCacheUntilInvalidate(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "audiobooks")
	writeBookFixture(t, root, "book.m4b")

	var probeCalls atomic.Int32
	scanner := NewScanner(
		[]SourceConfig{{ID: "main", Name: "Main", Path: root}},
		language.Spanish,
		WithMetadataProber(func(context.Context, string) (Metadata, error) {
			probeCalls.Add(1)
			return Metadata{}, nil
		}),
		WithCacheTTL(10*time.Second),
	)

	_, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	_, err = scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), probeCalls.Load())

	scanner.Invalidate()
	_, err = scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), probeCalls.Load())
}

func TestScanner_MissingSourceDirIsSkipped(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "audiobooks")
	writeBookFixture(t, root, "book.m4b")

	scanner := NewScanner(
		[]SourceConfig{
			{ID: "main", Name: "Main", Path: root},
			{ID: "gone", Name: "Gone", Path: filepath.Join(tmp, "does-not-exist")},
		},
		language.Spanish,
	)
	lib, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, lib.Sources, 1)
	assert.Len(t, lib.Books, 1)
}
