package param

import (
	"errors"
	"io/fs"
	"os"
)

// FileStore keeps the parameter image in a small file, the way the board
// keeps it in EEPROM.
type FileStore struct {
	Path string
}

func (s FileStore) Load() ([]byte, error) {
	bb, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotReady
	}
	return bb, err
}

func (s FileStore) Save(image []byte) error {
	return os.WriteFile(s.Path, image, 0644)
}

// MemStore is a Store in memory.  A nil Image reads as not ready.
type MemStore struct {
	Image  []byte
	Broken bool
}

func (s *MemStore) Load() ([]byte, error) {
	if s.Broken || s.Image == nil {
		return nil, ErrNotReady
	}
	return append([]byte(nil), s.Image...), nil
}

func (s *MemStore) Save(image []byte) error {
	if s.Broken {
		return ErrNotReady
	}
	s.Image = append([]byte(nil), image...)
	return nil
}
