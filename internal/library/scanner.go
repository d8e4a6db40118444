package library

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lmeyer/audioscribe/internal/apperr"
	"github.com/lmeyer/audioscribe/pkg/log"
	"golang.org/x/text/language"
)

// Metadata is what a prober can recover from the media container
// itself. Zero fields fall back to filename-derived values.
type Metadata struct {
	Title        string
	Author       string
	Duration     float64
	ChapterCount int
}

// MetadataProber enriches a scanned book from its container tags.
// Probe failures degrade to filename-derived metadata, never fail the
// scan.
type MetadataProber func(ctx context.Context, mediaPath string) (Metadata, error)

type scannerOptions struct {
	prober   MetadataProber
	cacheTTL time.Duration
}

type Option func(*scannerOptions)

func WithMetadataProber(prober MetadataProber) Option {
	return func(o *scannerOptions) {
		o.prober = prober
	}
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(o *scannerOptions) {
		o.cacheTTL = ttl
	}
}

type scanCache struct {
	version uint64
	scanned time.Time
	library *Library
}

// Scanner walks the configured source roots for audiobook files and
// reports, per book, which transcript and translation artifacts exist.
// Scans are cached for a short TTL; Invalidate or a target-language
// change drops the cache.
type Scanner struct {
	sources        []SourceConfig
	targetLanguage language.Tag
	prober         MetadataProber

	mu            sync.RWMutex
	cacheTTL      time.Duration
	cache         *scanCache
	configVersion uint64
}

func NewScanner(
	sources []SourceConfig,
	targetLanguage language.Tag,
	opts ...Option,
) *Scanner {
	options := scannerOptions{
		cacheTTL: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Scanner{
		sources:        sources,
		targetLanguage: targetLanguage,
		prober:         options.prober,
		cacheTTL:       options.cacheTTL,
	}
}

// Sources returns the configured source roots.
func (s *Scanner) Sources() []SourceConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]SourceConfig(nil), s.sources...)
}

func (s *Scanner) TargetLanguage() string {
	s.mu.RLock()
	target := s.targetLanguage
	s.mu.RUnlock()

	base, _ := target.Base()
	return base.String()
}

func (s *Scanner) UpdateTargetLanguage(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInput, "malformed target language").
			WithContext("lang", lang)
	}

	s.mu.Lock()
	if s.targetLanguage != tag {
		s.targetLanguage = tag
		s.cache = nil
		s.configVersion++
	}
	s.mu.Unlock()
	return nil
}

func (s *Scanner) Invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.configVersion++
	s.mu.Unlock()
}

func (s *Scanner) Scan(ctx context.Context) (*Library, error) {
	s.mu.RLock()
	version := s.configVersion
	cacheTTL := s.cacheTTL
	if s.cache != nil && s.cache.version == version && (cacheTTL <= 0 || time.Since(s.cache.scanned) < cacheTTL) {
		cached := cloneLibrary(s.cache.library)
		s.mu.RUnlock()
		return cached, nil
	}
	sources := append([]SourceConfig(nil), s.sources...)
	targetLanguage := s.targetLanguage
	prober := s.prober
	s.mu.RUnlock()

	ret := &Library{
		Sources: make([]Source, 0, len(sources)),
		Books:   make([]Book, 0),
	}

	for _, sourceCfg := range sources {
		if sourceCfg.Path == "" {
			continue
		}
		if _, err := os.Stat(sourceCfg.Path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		source := Source{
			ID:   sourceCfg.ID,
			Name: sourceCfg.Name,
			Path: sourceCfg.Path,
		}

		mediaFiles, err := findAudioFiles(sourceCfg.Path)
		if err != nil {
			return nil, err
		}
		for _, mediaPath := range mediaFiles {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			info, err := os.Stat(mediaPath)
			if err != nil {
				// Removed between walk and stat.
				continue
			}

			relPath, err := filepath.Rel(sourceCfg.Path, mediaPath)
			if err != nil {
				return nil, err
			}

			artifacts, err := findArtifacts(mediaPath, targetLanguage)
			if err != nil {
				return nil, err
			}

			book := Book{
				ID:         EncodeBookID(sourceCfg.ID, relPath),
				SourceID:   sourceCfg.ID,
				Author:     resolveAuthor(sourceCfg.Path, mediaPath),
				Title:      cleanBookTitle(strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))),
				RelPath:    relPath,
				MediaPath:  mediaPath,
				SizeBytes:  info.Size(),
				ModifiedAt: info.ModTime().UTC(),
				Artifacts:  artifacts,
			}

			if prober != nil {
				meta, err := prober(ctx, mediaPath)
				if err != nil {
					log.Warn("Metadata probe failed for %s: %v", mediaPath, err)
				} else {
					if meta.Title != "" {
						book.Title = meta.Title
					}
					if meta.Author != "" {
						book.Author = meta.Author
					}
					book.Duration = meta.Duration
					book.ChapterCount = meta.ChapterCount
				}
			}

			ret.Books = append(ret.Books, book)
			source.BookCount++
		}

		ret.Sources = append(ret.Sources, source)
	}

	s.mu.Lock()
	if s.configVersion == version {
		s.cache = &scanCache{
			version: version,
			scanned: time.Now(),
			library: cloneLibrary(ret),
		}
	}
	s.mu.Unlock()

	return ret, nil
}

// Find resolves a book ID against the current scan.
func (s *Scanner) Find(ctx context.Context, bookID string) (*Book, error) {
	lib, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	for i := range lib.Books {
		if lib.Books[i].ID == bookID {
			return &lib.Books[i], nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "book not found").
		WithContext("book", bookID)
}

// EncodeBookID builds a stable, URL-safe identifier from the source ID
// and the book's path relative to that source root.
func EncodeBookID(sourceID, relPath string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(sourceID + "|" + filepath.ToSlash(relPath)))
}

// DecodeBookID is the inverse of EncodeBookID.
func DecodeBookID(id string) (sourceID, relPath string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return "", "", apperr.Wrap(err, apperr.KindInput, "malformed book id")
	}
	sourceID, relPath, ok := strings.Cut(string(raw), "|")
	if !ok || sourceID == "" || relPath == "" {
		return "", "", apperr.New(apperr.KindInput, "malformed book id")
	}
	return sourceID, filepath.FromSlash(relPath), nil
}

var audioExts = []string{
	".m4b", ".m4a", ".mp3", ".aac", ".flac", ".ogg", ".opus", ".wav", ".wma",
}

const artifactDirName = ".stt"

func findAudioFiles(root string) ([]string, error) {
	ret := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == artifactDirName {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if slices.Contains(audioExts, ext) {
			ret = append(ret, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

var transcriptFilePattern = regexp.MustCompile(`^chapter-(\d+)\.json$`)
var translationFilePattern = regexp.MustCompile(`^chapter-(\d+)\.translation-([a-z0-9-]+)\.json$`)

// findArtifacts inventories the .stt/<media base name>/ directory
// beside the media file by filename only; it never opens the
// documents.
func findArtifacts(mediaPath string, target language.Tag) (ArtifactStatus, error) {
	ret := ArtifactStatus{
		TranscribedChapters:  make([]int, 0),
		TranslationLanguages: make([]string, 0),
	}

	dir := filepath.Join(filepath.Dir(mediaPath), artifactDirName, filepath.Base(mediaPath))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return ret, nil
		}
		return ret, err
	}

	seenLang := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if m := translationFilePattern.FindStringSubmatch(name); m != nil {
			lang := m[2]
			if !seenLang[lang] {
				seenLang[lang] = true
				ret.TranslationLanguages = append(ret.TranslationLanguages, lang)
			}
			if isTargetLanguage(lang, target) {
				ret.HasTargetTranslation = true
			}
			continue
		}
		if m := transcriptFilePattern.FindStringSubmatch(name); m != nil {
			chapter, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			ret.TranscribedChapters = append(ret.TranscribedChapters, chapter)
		}
	}

	sort.Ints(ret.TranscribedChapters)
	sort.Strings(ret.TranslationLanguages)
	ret.HasTranscript = len(ret.TranscribedChapters) > 0
	return ret, nil
}

// resolveAuthor treats the first directory level under the source root
// as the author shelf. A file directly in the root has no author.
func resolveAuthor(sourcePath, mediaPath string) string {
	rel, err := filepath.Rel(sourcePath, filepath.Dir(mediaPath))
	if err != nil || rel == "." {
		return ""
	}
	return strings.SplitN(rel, string(filepath.Separator), 2)[0]
}

var releaseSuffixPattern = regexp.MustCompile(`(?i)\s*[\[(](unabridged|abridged|retail|audiobook|mp3|m4b|\d+\s?kbps)[\])]`)

// cleanBookTitle strips release-style bracket suffixes and an
// "Author - Title" prefix from a filename base.
// e.g. "Jane Doe - The Long Road (Unabridged) [64kbps]" -> "The Long Road"
func cleanBookTitle(basename string) string {
	title := releaseSuffixPattern.ReplaceAllString(basename, "")
	title = strings.TrimSpace(title)
	if _, after, ok := strings.Cut(title, " - "); ok && strings.TrimSpace(after) != "" {
		title = strings.TrimSpace(after)
	}
	if title == "" {
		return basename
	}
	return title
}

func isTargetLanguage(token string, target language.Tag) bool {
	token = strings.ToLower(strings.ReplaceAll(token, "_", "-"))
	if token == "" {
		return false
	}

	base, _ := target.Base()
	targetBase := strings.ToLower(base.String())
	return token == targetBase || strings.HasPrefix(token, targetBase+"-")
}

func cloneLibrary(src *Library) *Library {
	if src == nil {
		return nil
	}

	dst := &Library{
		Sources: make([]Source, len(src.Sources)),
		Books:   make([]Book, len(src.Books)),
	}
	copy(dst.Sources, src.Sources)
	copy(dst.Books, src.Books)

	for i := range dst.Books {
		dst.Books[i].Artifacts.TranscribedChapters = append([]int(nil), src.Books[i].Artifacts.TranscribedChapters...)
		dst.Books[i].Artifacts.TranslationLanguages = append([]string(nil), src.Books[i].Artifacts.TranslationLanguages...)
	}
	return dst
}
