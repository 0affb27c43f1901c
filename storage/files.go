package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vocdoni/zk-disclosure/log"
	"github.com/vocdoni/zk-disclosure/types"
	"github.com/vocdoni/zk-disclosure/util"
)

// Names of the artifact files written for a proven vote.
const (
	SealFile       = "seal.dat"
	JournalFile    = "journal.dat"
	JournalABIFile = "journal_abi.dat"
	ImageIDFile    = "image_id.dat"
)

// Artifacts is the set of values written as artifact files, each one as
// lowercase hex text.
type Artifacts struct {
	Seal []byte
	// Journal is the raw receipt journal.
	Journal []byte
	// JournalABI is the payload recovered from the journal ABI envelope.
	JournalABI []byte
	ImageID    types.Digest
}

func (a *Artifacts) files() map[string][]byte {
	files := map[string][]byte{
		JournalFile:    a.Journal,
		JournalABIFile: a.JournalABI,
		ImageIDFile:    a.ImageID[:],
	}
	if len(a.Seal) > 0 {
		files[SealFile] = a.Seal
	}
	return files
}

// WriteArtifacts writes the artifact files into dir, creating it if needed.
// Every file is written to a temporary file and renamed into place. The seal
// file is only written when there is a seal.
func WriteArtifacts(dir string, a *Artifacts) error {
	if len(a.Journal) == 0 {
		return fmt.Errorf("missing journal")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	for name, data := range a.files() {
		path := filepath.Join(dir, name)
		if err := util.WriteFileAtomic(path, []byte(hex.EncodeToString(data)), 0o644); err != nil {
			return fmt.Errorf("error writing %s: %w", name, err)
		}
		log.Debugw("artifact file written", "path", path, "bytes", len(data))
	}
	return nil
}

// ReadArtifacts reads the artifact files from dir. A missing seal file
// leaves Seal empty.
func ReadArtifacts(dir string) (*Artifacts, error) {
	read := func(name string) ([]byte, error) {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		data, err := hex.DecodeString(strings.TrimSpace(string(content)))
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not hex: %w", types.ErrDecoding, name, err)
		}
		return data, nil
	}
	a := &Artifacts{}
	var err error
	if a.Seal, err = read(SealFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if a.Journal, err = read(JournalFile); err != nil {
		return nil, err
	}
	if a.JournalABI, err = read(JournalABIFile); err != nil {
		return nil, err
	}
	imageID, err := read(ImageIDFile)
	if err != nil {
		return nil, err
	}
	if a.ImageID, err = types.DigestFromBytes(imageID); err != nil {
		return nil, err
	}
	return a, nil
}
