package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lmeyer/audioscribe/internal/apperr"
	"github.com/lmeyer/audioscribe/internal/transcript"
	"github.com/lmeyer/audioscribe/pkg/log"
)

const cacheDirName = ".stt"

// Store is the idempotent, file-keyed cache for transcript and
// translation artifacts. Artifacts live in a .stt/<media base name>/
// directory beside the media file, one JSON document per
// (chapter[, language]) key. A corrupt document reads as a cache miss
// so the caller recomputes instead of serving garbage.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) TranscriptPath(mediaPath string, chapter int) string {
	return filepath.Join(s.cacheDir(mediaPath), fmt.Sprintf("chapter-%d.json", chapter))
}

func (s *Store) TranslationPath(mediaPath string, chapter int, lang string) string {
	return filepath.Join(s.cacheDir(mediaPath), fmt.Sprintf("chapter-%d.translation-%s.json", chapter, lang))
}

func (s *Store) cacheDir(mediaPath string) string {
	mediaPath = filepath.Clean(mediaPath)
	return filepath.Join(filepath.Dir(mediaPath), cacheDirName, filepath.Base(mediaPath))
}

func (s *Store) LoadTranscript(mediaPath string, chapter int) (*transcript.Chapter, error) {
	var ch transcript.Chapter
	if err := s.load(s.TranscriptPath(mediaPath, chapter), &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (s *Store) SaveTranscript(mediaPath string, ch *transcript.Chapter) error {
	return s.save(s.TranscriptPath(mediaPath, ch.ChapterIndex), ch)
}

func (s *Store) LoadTranslation(mediaPath string, chapter int, lang string) (*transcript.Translation, error) {
	var tr transcript.Translation
	if err := s.load(s.TranslationPath(mediaPath, chapter, lang), &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

func (s *Store) SaveTranslation(mediaPath string, tr *transcript.Translation) error {
	return s.save(s.TranslationPath(mediaPath, tr.ChapterIndex, tr.TargetLanguage), tr)
}

// HasTranscript reports whether a transcript artifact exists for the
// key, without reading it.
func (s *Store) HasTranscript(mediaPath string, chapter int) bool {
	_, err := os.Stat(s.TranscriptPath(mediaPath, chapter))
	return err == nil
}

func (s *Store) load(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return apperr.Wrap(err, apperr.KindNotFound, "artifact not found").
				WithContext("path", path)
		}
		return apperr.Wrap(err, apperr.KindCache, "read artifact").
			WithContext("path", path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.Warn("Corrupt artifact %s treated as cache miss: %v", path, err)
		return apperr.Wrap(err, apperr.KindCache, "corrupt artifact").
			WithContext("path", path)
	}
	return nil
}

// save writes through a temp file in the target directory and renames
// it into place, so concurrent readers never observe partial JSON.
func (s *Store) save(path string, doc any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.Wrap(err, apperr.KindResource, "create artifact directory").
			WithContext("dir", dir)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "encode artifact")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return apperr.Wrap(err, apperr.KindResource, "create artifact temp file").
			WithContext("dir", dir)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperr.Wrap(err, apperr.KindResource, "write artifact").
			WithContext("path", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperr.Wrap(err, apperr.KindResource, "close artifact temp file").
			WithContext("path", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return apperr.Wrap(err, apperr.KindResource, "publish artifact").
			WithContext("path", path)
	}
	return nil
}

// IsMiss reports whether err means the artifact is absent or unusable,
// either of which triggers recomputation.
func IsMiss(err error) bool {
	return apperr.IsKind(err, apperr.KindNotFound) || apperr.IsKind(err, apperr.KindCache)
}
