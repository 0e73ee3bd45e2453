package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/philippgille/gokv"
	"github.com/philippgille/gokv/badgerdb"
	"github.com/philippgille/gokv/encoding"
	"github.com/philippgille/gokv/file"
	"github.com/philippgille/gokv/syncmap"
)

// DefaultDataDir is used by the file and badgerdb stores when no directory is
// configured.
const DefaultDataDir = "ivprover-data"

// SyncMapStoreOptions configures an in-memory store. Records are lost on exit.
type SyncMapStoreOptions struct {
	Codec string `json:"codec"`
}

func NewSyncMapStore(optionsJSON string) (gokv.Store, error) {
	var options SyncMapStoreOptions
	if err := unmarshalOptions(optionsJSON, &options); err != nil {
		return nil, err
	}
	codec, err := getStoreCodec(options.Codec)
	if err != nil {
		return nil, fmt.Errorf("getStoreCodec err: %w", err)
	}
	if codec == nil {
		return syncmap.NewStore(syncmap.DefaultOptions), nil
	}
	return syncmap.NewStore(syncmap.Options{Codec: codec}), nil
}

// FileStoreOptions configures a store that writes one file per key. Records
// are JSON encoded by default so they can be inspected by hand.
type FileStoreOptions struct {
	Directory         string `json:"dir"`
	FilenameExtension string `json:"file_name_extension"`
	Codec             string `json:"codec"`
}

func NewFileStore(optionsJSON string) (gokv.Store, error) {
	var options FileStoreOptions
	if err := unmarshalOptions(optionsJSON, &options); err != nil {
		return nil, err
	}
	codec, err := getStoreCodec(options.Codec)
	if err != nil {
		return nil, fmt.Errorf("getStoreCodec err: %w", err)
	}
	if codec == nil {
		codec = encoding.JSON
	}
	dir := options.Directory
	if dir == "" {
		dir = filepath.Join(DefaultDataDir, "cycles")
	}
	var filenameExtension *string
	if options.FilenameExtension != "" {
		filenameExtension = &options.FilenameExtension
	}
	store, err := file.NewStore(file.Options{Directory: dir, FilenameExtension: filenameExtension, Codec: codec})
	if err != nil {
		return nil, fmt.Errorf("file.NewStore err: %w", err)
	}
	return store, nil
}

// BadgerDbStoreOptions configures an embedded BadgerDB store.
type BadgerDbStoreOptions struct {
	Dir   string `json:"dir"`
	Codec string `json:"codec"`
}

func NewBadgerDBStore(optionsJSON string) (gokv.Store, error) {
	var options BadgerDbStoreOptions
	if err := unmarshalOptions(optionsJSON, &options); err != nil {
		return nil, err
	}
	codec, err := getStoreCodec(options.Codec)
	if err != nil {
		return nil, fmt.Errorf("getStoreCodec err: %w", err)
	}
	badgerOptions := badgerdb.DefaultOptions
	badgerOptions.Dir = filepath.Join(DefaultDataDir, "badger")
	if options.Dir != "" {
		badgerOptions.Dir = options.Dir
	}
	if codec != nil {
		badgerOptions.Codec = codec
	}
	store, err := badgerdb.NewStore(badgerOptions)
	if err != nil {
		return nil, fmt.Errorf("badgerdb.NewStore err: %w", err)
	}
	return store, nil
}

func unmarshalOptions(optionsJSON string, v any) error {
	if optionsJSON == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(optionsJSON), v); err != nil {
		return fmt.Errorf("json.Unmarshal err: %w", err)
	}
	return nil
}
