// Copyright 2019 Vedran Vuk. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package blockfile

import (
	"bytes"
	"os"

	"github.com/vedranvuk/binaryex"
)

// keyEntry is the payload of a KeyValue's list node: the key bytes,
// prefixed by the block storage index of the record holding the value.
type keyEntry struct {
	ValueIndex uint64
}

func marshalKeyEntry(valueIndex int64, key []byte) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 8+len(key)))
	if err := binaryex.WriteStruct(buf, &keyEntry{ValueIndex: uint64(valueIndex)}); err != nil {
		return nil, ErrDecode.Errorf("marshal key entry error: %w", err)
	}
	buf.Write(key)
	return buf.Bytes(), nil
}

func unmarshalKeyEntry(record []byte) (valueIndex int64, key []byte, err error) {
	r := bytes.NewReader(record)
	e := &keyEntry{}
	if err := binaryex.ReadStruct(r, e); err != nil {
		return 0, nil, ErrDecode.Errorf("unmarshal key entry error: %w", err)
	}
	key = make([]byte, r.Len())
	copy(key, record[len(record)-r.Len():])
	return int64(e.ValueIndex), key, nil
}

// KeyValue is a key-value map backed by a List: one list node per key,
// holding the key bytes and the index of a separate value record. The
// key -> value-record-index map is kept entirely in memory, rebuilt by
// scanning the list's nodes on open.
type KeyValue struct {
	list    *List
	store   *BlockStorage
	valueOf map[string]int64
	nodeOf  map[string]int64
}

// OpenKeyValue opens a KeyValue backed by store, rebuilding its in-memory
// index by scanning every node currently in the list.
func OpenKeyValue(store *BlockStorage) (*KeyValue, error) {
	list, err := OpenList(store)
	if err != nil {
		return nil, err
	}
	kv := &KeyValue{
		list:    list,
		store:   store,
		valueOf: make(map[string]int64),
		nodeOf:  make(map[string]int64),
	}
	var iterErr error
	err = list.Iter(func(nodeIndex int64, payload []byte) bool {
		valueIndex, key, err := unmarshalKeyEntry(payload)
		if err != nil {
			iterErr = err
			return false
		}
		kv.valueOf[string(key)] = valueIndex
		kv.nodeOf[string(key)] = nodeIndex
		return true
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	return kv, nil
}

// Set stores value under key, replacing any existing entry for key.
func (kv *KeyValue) Set(key, value []byte) error {
	if len(key) == 0 {
		return ErrInvalidKey
	}
	if _, exists := kv.valueOf[string(key)]; exists {
		if err := kv.Remove(key); err != nil {
			return err
		}
	}
	valueIndex, err := kv.store.CreateRecord(value)
	if err != nil {
		return err
	}
	entry, err := marshalKeyEntry(valueIndex, key)
	if err != nil {
		return err
	}
	nodeIndex, err := kv.list.InsertEnd(entry)
	if err != nil {
		return err
	}
	kv.valueOf[string(key)] = valueIndex
	kv.nodeOf[string(key)] = nodeIndex
	return nil
}

// Get returns the value stored under key. ok is false if key is absent.
func (kv *KeyValue) Get(key []byte) (value []byte, ok bool, err error) {
	if len(key) == 0 {
		return nil, false, ErrInvalidKey
	}
	valueIndex, present := kv.valueOf[string(key)]
	if !present {
		return nil, false, nil
	}
	value, err = kv.store.Read(valueIndex)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Remove deletes the entry for key, if present.
func (kv *KeyValue) Remove(key []byte) error {
	k := string(key)
	valueIndex, present := kv.valueOf[k]
	if !present {
		return nil
	}
	nodeIndex := kv.nodeOf[k]
	if err := kv.store.Delete(valueIndex); err != nil {
		return err
	}
	if err := kv.list.Remove(nodeIndex); err != nil {
		return err
	}
	delete(kv.valueOf, k)
	delete(kv.nodeOf, k)
	return nil
}

// Keys returns a snapshot of every key currently stored, in no particular
// order.
func (kv *KeyValue) Keys() [][]byte {
	keys := make([][]byte, 0, len(kv.valueOf))
	for k := range kv.valueOf {
		keys = append(keys, []byte(k))
	}
	return keys
}

// Len returns the number of entries stored.
func (kv *KeyValue) Len() int64 {
	return int64(len(kv.valueOf))
}

// IsEmpty reports whether the map holds no entries.
func (kv *KeyValue) IsEmpty() bool {
	return len(kv.valueOf) == 0
}

// WastedBytes reports free-list bytes reclaimable by Compact.
func (kv *KeyValue) WastedBytes() (int64, error) {
	return kv.list.WastedBytes()
}

// WastedRatio reports the fraction of allocated space that is currently
// wasted, a real number in [0,1].
func (kv *KeyValue) WastedRatio() float64 {
	return kv.list.WastedRatio()
}

// Compact rebuilds the map's backing file at path, dropping free-list
// waste. Unlike List.Compact, key entries and their value records live in
// separate chains, so KeyValue rebuilds both explicitly through Set rather
// than delegating to the list's own node-only copy.
func (kv *KeyValue) Compact(path string, options *Options) error {
	tmpPath := path + ".compact"
	if exists, err := FileExists(tmpPath); err != nil {
		return err
	} else if exists {
		if err := os.Remove(tmpPath); err != nil {
			return ErrIO.Errorf("compact error: %w", err)
		}
	}
	newStore, err := Create(tmpPath, options)
	if err != nil {
		return err
	}
	newKV, err := OpenKeyValue(newStore)
	if err != nil {
		newStore.Close()
		return err
	}
	var copyErr error
	_ = kv.list.Iter(func(_ int64, payload []byte) bool {
		valueIndex, key, err := unmarshalKeyEntry(payload)
		if err != nil {
			copyErr = err
			return false
		}
		value, err := kv.store.Read(valueIndex)
		if err != nil {
			copyErr = err
			return false
		}
		if err := newKV.Set(key, value); err != nil {
			copyErr = err
			return false
		}
		return true
	})
	if copyErr != nil {
		newStore.Close()
		return copyErr
	}
	if err := newStore.Close(); err != nil {
		return err
	}
	if err := kv.store.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return ErrIO.Errorf("compact rename error: %w", err)
	}
	compacted, err := Open(path, options)
	if err != nil {
		return err
	}
	reopened, err := OpenKeyValue(compacted)
	if err != nil {
		return err
	}
	kv.list = reopened.list
	kv.store = reopened.store
	kv.valueOf = reopened.valueOf
	kv.nodeOf = reopened.nodeOf
	return nil
}
