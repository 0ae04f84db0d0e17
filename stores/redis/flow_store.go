// Package redis provides a Redis-backed implementation of the accounts
// email-flow store. Flow records are stored as JSON values with a TTL,
// and the status transitions run as Lua scripts so the
// compare-and-swap contract holds without client-side locking.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	accounts "github.com/one-zero-eight/accounts"
)

// markSentLua transitions a pending flow to sent in a single round trip.
// KEYS[1] = flow record key
// ARGV[1] = sent-at timestamp (RFC 3339)
var markSentLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local flow = cjson.decode(data)
if flow.status ~= 'pending' then
  return {err='conflict'}
end

flow.status = 'sent'
flow.sent_at = ARGV[1]
local encoded = cjson.encode(flow)

local ttlMs = redis.call('PTTL', KEYS[1])
if ttlMs > 0 then
  redis.call('SET', KEYS[1], encoded, 'PX', ttlMs)
else
  redis.call('SET', KEYS[1], encoded)
end
return encoded
`)

// finalizeLua atomically settles a flow. If the flow is already
// terminal the stored record is returned unchanged with a lost flag,
// so at most one caller ever wins the transition.
// KEYS[1] = flow record key
// ARGV[1] = terminal status
// ARGV[2] = verifying subject (JSON object)
// ARGV[3] = verified-at timestamp (RFC 3339)
var finalizeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local flow = cjson.decode(data)
if flow.status ~= 'pending' and flow.status ~= 'sent' then
  return {0, data}
end

flow.status = ARGV[1]
flow.verified = cjson.decode(ARGV[2])
flow.verified_at = ARGV[3]
local encoded = cjson.encode(flow)

local ttlMs = redis.call('PTTL', KEYS[1])
if ttlMs > 0 then
  redis.call('SET', KEYS[1], encoded, 'PX', ttlMs)
else
  redis.call('SET', KEYS[1], encoded)
end
return {1, encoded}
`)

// FlowStore implements accounts.EmailFlowStore on Redis.
type FlowStore struct {
	client redis.UniversalClient
	prefix string

	// RecordTTL bounds how long settled flows stay readable for
	// idempotent replay. It must exceed the engine's verification TTL.
	RecordTTL time.Duration
}

func NewFlowStore(client redis.UniversalClient, prefix string) *FlowStore {
	if prefix == "" {
		prefix = "acc"
	}
	return &FlowStore{
		client:    client,
		prefix:    prefix,
		RecordTTL: 24 * time.Hour,
	}
}

func (s *FlowStore) key(id string) string {
	return s.prefix + ":emailflow:" + id
}

func (s *FlowStore) CreateFlow(ctx context.Context, flow *accounts.EmailFlow) error {
	encoded, err := json.Marshal(flow)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.key(flow.ID), encoded, s.RecordTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("email flow %s already exists", flow.ID)
	}
	return nil
}

func (s *FlowStore) GetFlow(ctx context.Context, id string) (*accounts.EmailFlow, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, accounts.ErrFlowNotFound
	}
	if err != nil {
		return nil, err
	}
	var flow accounts.EmailFlow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, err
	}
	return &flow, nil
}

func (s *FlowStore) MarkSent(ctx context.Context, id string) error {
	sentAt := time.Now().UTC().Format(time.RFC3339Nano)
	err := markSentLua.Run(ctx, s.client, []string{s.key(id)}, sentAt).Err()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return accounts.ErrFlowNotFound
		case "conflict":
			return accounts.ErrFlowConflict
		}
		return err
	}
	return nil
}

func (s *FlowStore) FinalizeFlow(ctx context.Context, id string, status accounts.EmailFlowStatus, subject accounts.Subject, at time.Time) (*accounts.EmailFlow, bool, error) {
	if !status.Terminal() {
		return nil, false, fmt.Errorf("finalize requires a terminal status, got %q", status)
	}

	subjectJSON, err := json.Marshal(subject)
	if err != nil {
		return nil, false, err
	}

	result, err := finalizeLua.Run(ctx, s.client,
		[]string{s.key(id)},
		string(status),
		string(subjectJSON),
		at.UTC().Format(time.RFC3339Nano),
	).Result()
	if err != nil {
		if err.Error() == "not_found" {
			return nil, false, accounts.ErrFlowNotFound
		}
		return nil, false, err
	}

	pair, ok := result.([]any)
	if !ok || len(pair) != 2 {
		return nil, false, fmt.Errorf("unexpected lua result %T", result)
	}
	won, _ := pair[0].(int64)
	encoded, ok := pair[1].(string)
	if !ok {
		return nil, false, fmt.Errorf("unexpected lua payload %T", pair[1])
	}

	var flow accounts.EmailFlow
	if err := json.Unmarshal([]byte(encoded), &flow); err != nil {
		return nil, false, err
	}
	return &flow, won == 1, nil
}
