// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package snapshot persists the identity half of the aggregate store
// (name, profession, fight point, max HP — never cumulative stats) to a
// JSON file, atomically, and optionally mirrors it to S3.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/pgzip"

	"github.com/nullstride/resonance-observer/internal/aggregate"
	"github.com/nullstride/resonance-observer/internal/config"
)

// Entry is one player's persisted identity, per the shipped snapshot
// format: {uid -> {uid, name, profession, fightPoint, maxHp}}.
type Entry struct {
	UID        uint32 `json:"uid"`
	Name       string `json:"name"`
	Profession string `json:"profession"`
	FightPoint uint32 `json:"fightPoint"`
	MaxHP      uint32 `json:"maxHp"`
}

// Persister writes and reads the identity cache at a configured path,
// optionally compressed and optionally mirrored to S3.
type Persister struct {
	path     string
	compress bool
	s3       *s3Mirror
}

type s3Mirror struct {
	client *s3.Client
	bucket string
	key    string
}

// New builds a Persister from configuration. When cfg.S3 is set, Save
// also uploads the rendered snapshot to that bucket/key.
func New(ctx context.Context, cfg config.SnapshotConfig) (*Persister, error) {
	p := &Persister{path: cfg.Path, compress: cfg.Compress}
	if cfg.S3 == nil {
		return p, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3.Region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config for snapshot mirror: %w", err)
	}
	p.s3 = &s3Mirror{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.S3.Bucket,
		key:    cfg.S3.Key,
	}
	return p, nil
}

// Save renders every player's identity fields from store, writes them
// atomically (temp file + rename, the way the backup writer does it),
// and mirrors the result to S3 if configured.
func (p *Persister) Save(ctx context.Context, store *aggregate.Store) error {
	if p.path == "" {
		return nil
	}

	players := store.Players()
	entries := make(map[uint32]Entry, len(players))
	for uid, pl := range players {
		entries[uid] = Entry{
			UID:        uid,
			Name:       pl.Name,
			Profession: pl.Profession,
			FightPoint: pl.FightPoint,
			MaxHP:      pl.MaxHP,
		}
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if p.compress {
		data, err = gzipBytes(data)
		if err != nil {
			return fmt.Errorf("compressing snapshot: %w", err)
		}
	}

	if err := p.writeAtomic(data); err != nil {
		return err
	}

	if p.s3 != nil {
		if err := p.uploadToS3(ctx, data); err != nil {
			return fmt.Errorf("mirroring snapshot to s3: %w", err)
		}
	}
	return nil
}

func (p *Persister) writeAtomic(data []byte) error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp snapshot file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp snapshot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp snapshot file: %w", err)
	}
	return nil
}

func (p *Persister) uploadToS3(ctx context.Context, data []byte) error {
	_, err := p.s3.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.s3.bucket),
		Key:    aws.String(p.s3.key),
		Body:   bytes.NewReader(data),
	})
	return err
}

// Load reads the identity cache at startup, if present. A missing file
// is not an error — there is simply no identity to restore yet.
func (p *Persister) Load() (map[uint32]Entry, error) {
	if p.path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}
	if p.compress {
		raw, err = gunzipBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("decompressing snapshot file: %w", err)
		}
	}

	var entries map[uint32]Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parsing snapshot file: %w", err)
	}
	return entries, nil
}

// Restore seeds store's player identity fields from a previously loaded
// snapshot. Cumulative stats are never restored.
func Restore(store *aggregate.Store, entries map[uint32]Entry) {
	for uid, e := range entries {
		store.SetUserName(uid, e.Name)
		store.SetUserProfession(uid, e.Profession)
		store.SetUserFightPoint(uid, e.FightPoint)
		maxHP := e.MaxHP
		store.SetUserHP(uid, nil, &maxHP)
	}
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := pgzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	r, err := pgzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
