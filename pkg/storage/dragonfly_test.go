// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
)

var fixedNow = time.Unix(1700000000, 0).UTC()

func newMockStore(t *testing.T) (*DragonflyStore, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	store := NewDragonflyStoreWithClient(client, "")
	store.now = func() time.Time { return fixedNow }
	return store, mock
}

func TestDragonflyStore_Upsert(t *testing.T) {
	store, mock := newMockStore(t)

	testCases := []struct {
		name    string
		key     string
		url     string
		mocker  func()
		wantErr bool
	}{
		{
			name: "success",
			key:  "tts/4fd6a79b424a279f.mp3",
			url:  "https://fawa-test.sgp1.cdn.digitaloceanspaces.com/tts/4fd6a79b424a279f.mp3",
			mocker: func() {
				data, _ := json.Marshal(&CachePointer{
					Key:       "tts/4fd6a79b424a279f.mp3",
					URL:       "https://fawa-test.sgp1.cdn.digitaloceanspaces.com/tts/4fd6a79b424a279f.mp3",
					UpdatedAt: fixedNow,
				})
				mock.ExpectSet(DefaultKeyPrefix+"tts/4fd6a79b424a279f.mp3", data, 0).SetVal("OK")
			},
		},
		{
			name: "redis error",
			key:  "tts/error.mp3",
			url:  "https://cdn.example.com/tts/error.mp3",
			mocker: func() {
				data, _ := json.Marshal(&CachePointer{
					Key:       "tts/error.mp3",
					URL:       "https://cdn.example.com/tts/error.mp3",
					UpdatedAt: fixedNow,
				})
				mock.ExpectSet(DefaultKeyPrefix+"tts/error.mp3", data, 0).SetErr(errors.New("redis error"))
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.mocker()
			err := store.Upsert(context.Background(), tc.key, tc.url)
			if (err != nil) != tc.wantErr {
				t.Errorf("Upsert() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("there were unfulfilled expectations: %s", err)
			}
		})
	}
}

func TestDragonflyStore_Get(t *testing.T) {
	store, mock := newMockStore(t)

	want := &CachePointer{
		Key:       "tts/4fd6a79b424a279f.mp3",
		URL:       "https://fawa-test.sgp1.cdn.digitaloceanspaces.com/tts/4fd6a79b424a279f.mp3",
		UpdatedAt: fixedNow,
	}

	testCases := []struct {
		name       string
		key        string
		mocker     func()
		wantResult *CachePointer
		wantErr    error
	}{
		{
			name: "success",
			key:  want.Key,
			mocker: func() {
				data, _ := json.Marshal(want)
				mock.ExpectGet(DefaultKeyPrefix + want.Key).SetVal(string(data))
			},
			wantResult: want,
		},
		{
			name: "not found",
			key:  "tts/missing.mp3",
			mocker: func() {
				mock.ExpectGet(DefaultKeyPrefix + "tts/missing.mp3").RedisNil()
			},
			wantErr: ErrPointerNotFound,
		},
		{
			name: "redis error",
			key:  "tts/error.mp3",
			mocker: func() {
				mock.ExpectGet(DefaultKeyPrefix + "tts/error.mp3").SetErr(errors.New("connection reset"))
			},
			wantErr: errors.New("any"),
		},
		{
			name: "corrupt record",
			key:  "tts/corrupt.mp3",
			mocker: func() {
				mock.ExpectGet(DefaultKeyPrefix + "tts/corrupt.mp3").SetVal("{not json")
			},
			wantErr: errors.New("any"),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.mocker()
			result, err := store.Get(context.Background(), tc.key)
			if (err != nil) != (tc.wantErr != nil) {
				t.Errorf("Get() error = %v, wantErr %v", err, tc.wantErr)
			}
			if errors.Is(tc.wantErr, ErrPointerNotFound) && !errors.Is(err, ErrPointerNotFound) {
				t.Errorf("Get() error = %v, want ErrPointerNotFound", err)
			}
			if !reflect.DeepEqual(result, tc.wantResult) {
				t.Errorf("Get() = %v, want %v", result, tc.wantResult)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("there were unfulfilled expectations: %s", err)
			}
		})
	}
}

func TestDragonflyStore_CustomPrefix(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewDragonflyStoreWithClient(client, "staging:")

	mock.ExpectGet("staging:tts/a.mp3").RedisNil()
	mock.ExpectPing().SetVal("PONG")

	if _, err := store.Get(context.Background(), "tts/a.mp3"); !errors.Is(err, ErrPointerNotFound) {
		t.Errorf("Get() error = %v, want ErrPointerNotFound", err)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestNewDragonflyStore_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	// Construction does not dial.
	store := NewDragonflyStore(DragonflyOptions{Addr: addr, DialTimeout: 200 * time.Millisecond})
	defer store.Close()

	ctx := context.Background()
	if _, err := store.Get(ctx, "tts/a.mp3"); err == nil || errors.Is(err, ErrPointerNotFound) {
		t.Errorf("Get() error = %v, want a connection error", err)
	}
	if err := store.Upsert(ctx, "tts/a.mp3", "https://cdn/a.mp3"); err == nil {
		t.Error("Upsert() error = nil, want a connection error")
	}
	if err := store.Ping(ctx); err == nil {
		t.Error("Ping() error = nil, want a connection error")
	}
}
