// Package settings owns the durable `settings` record and its propagation.
// The record itself is an opaque configuration blob: parsing belongs to the
// rc-parser collaborator, the coordinator only stores it, hands it to every
// port, and rebroadcasts when the record changes underneath it.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/zchee/chromium-vim-sub001/internal/events"
	"github.com/zchee/chromium-vim-sub001/internal/port"
	"github.com/zchee/chromium-vim-sub001/internal/storage"
	"github.com/zchee/chromium-vim-sub001/internal/types"
)

// RecordSettings is the durable record key for the settings blob.
const RecordSettings = "settings"

// Parser is the rc-parser collaborator. It turns rc text into the settings
// blob contexts consume.
type Parser interface {
	ParseRC(ctx context.Context, text string) (json.RawMessage, error)
}

// PassthroughParser wraps rc text unparsed. The real grammar lives outside
// this layer; contexts receiving {"rc": ...} parse it themselves.
type PassthroughParser struct{}

// ParseRC implements Parser.
func (PassthroughParser) ParseRC(_ context.Context, text string) (json.RawMessage, error) {
	blob, err := json.Marshal(map[string]string{"rc": text})
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// Service stores, serves, and propagates the settings blob.
type Service struct {
	records *storage.RecordStore
	parser  Parser
	ports   *port.Registry
	feed    *events.Feed

	mu      sync.RWMutex
	current json.RawMessage
}

// NewService loads the settings record. A record that has never been
// written starts as an empty object and is written back immediately.
func NewService(records *storage.RecordStore, parser Parser, ports *port.Registry, feed *events.Feed) (*Service, error) {
	s := &Service{
		records: records,
		parser:  parser,
		ports:   ports,
		feed:    feed,
		current: json.RawMessage(`{}`),
	}
	if parser == nil {
		s.parser = PassthroughParser{}
	}

	var blob json.RawMessage
	err := records.Load(RecordSettings, &blob)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		if err := records.Save(RecordSettings, s.current); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		s.current = blob
	}
	return s, nil
}

// Current returns the settings blob as last loaded or set.
func (s *Service) Current() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(json.RawMessage(nil), s.current...)
}

// Set replaces the blob, writes it through, and broadcasts it.
func (s *Service) Set(blob json.RawMessage) error {
	if !json.Valid(blob) {
		return types.NewError(types.CodeMalformedPayload, "settings blob is not valid JSON", nil)
	}

	s.mu.Lock()
	s.current = append(json.RawMessage(nil), blob...)
	s.mu.Unlock()

	if err := s.records.Save(RecordSettings, blob); err != nil {
		return types.NewError(types.CodeHostCall, "write settings record", err)
	}
	s.Broadcast()
	return nil
}

// ParseRC runs rc text through the parser collaborator and installs the
// result as the current settings.
func (s *Service) ParseRC(ctx context.Context, text string) (json.RawMessage, error) {
	blob, err := s.parser.ParseRC(ctx, text)
	if err != nil {
		return nil, types.NewError(types.CodeMalformedPayload, "parse rc", err)
	}
	if err := s.Set(blob); err != nil {
		return nil, err
	}
	return blob, nil
}

// Broadcast pushes the current blob to every port. Per-port failures are
// reported by the registry sweep, never short-circuited.
func (s *Service) Broadcast() {
	sent, failed := s.ports.Broadcast(map[string]any{
		"type":     "sendSettings",
		"settings": s.Current(),
	}, nil)
	s.feed.Emit("settings", "broadcast", map[string]any{"sent": sent, "failed": failed})
}

// SendTo delivers the current blob to one port.
func (s *Service) SendTo(p *port.Port) error {
	return p.Send(map[string]any{
		"type":     "sendSettings",
		"settings": s.Current(),
	})
}

// OnRecordChanged is wired to the record watcher. An external write to the
// settings record reloads and rebroadcasts; other keys are ignored. The
// watcher cannot tell our own saves apart from external ones, so unchanged
// blobs reload without rebroadcasting.
func (s *Service) OnRecordChanged(key string) {
	if key != RecordSettings {
		return
	}
	var blob json.RawMessage
	if err := s.records.Load(RecordSettings, &blob); err != nil {
		s.feed.Discard("settings", "reload settings record", err)
		return
	}

	s.mu.Lock()
	changed := !jsonEqual(s.current, blob)
	s.current = blob
	s.mu.Unlock()

	if changed {
		s.feed.Emit("settings", "external_change", nil)
		s.Broadcast()
	}
}

func jsonEqual(a, b json.RawMessage) bool {
	var av, bv any
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return false
	}
	ab, _ := json.Marshal(av)
	bb, _ := json.Marshal(bv)
	return string(ab) == string(bb)
}
