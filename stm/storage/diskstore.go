/*
github.com/tcrain/stm - Stake-based threshold multisignature certificates.
Copyright (C) 2020 The project authors - tcrain

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.

*/

/*
Package storage contains the persistence collaborators of the aggregator, stores for the
certificate chain on disk or in memory, and a bbolt database for the registered keys of each
epoch and the pending certificate of the current round.
*/
package storage

import (
	"bufio"
	"fmt"
	"hash/adler32"
	"io"
	"os"
	"sync"

	"github.com/golang/snappy"

	"github.com/tcrain/stm/config"
	"github.com/tcrain/stm/stm/logging"
	"github.com/tcrain/stm/stm/types"
)

var openType = os.O_APPEND | os.O_RDWR | os.O_CREATE

const checksumLen = 4

type recordPos struct {
	offset int64 // position of the checksum of the record
	size   int64 // size of the stored value
}

// Diskstore is a key/value store kept in an append only file, keyed by hashes.
// Writing a key twice appends the new value, the old one stays in the file but is not
// accessible anymore. Every record is key, big endian u64 size, adler32 checksum, value.
// The keys and the position of their value are kept in memory, a value is checked against
// its checksum each time it is read.
// Values are compressed with snappy if useSnappy is set, writes are buffered if bufferSize > 0.
type Diskstore struct {
	mutex       sync.Mutex
	name        string
	useSnappy   bool
	keyMap      map[types.HashStr]recordPos
	orderedKeys []types.HashStr // in the order they were first written
	file        *os.File
	pos         int64 // current end of the file, -1 if unknown
	bufferSize  int
	writer      *bufio.Writer
}

// OpenDiskstore opens or creates the store at name. If the file exists the stored records
// are checked and loaded, invalid records are skipped.
func OpenDiskstore(name string, useSnappy bool, bufferSize int) (*Diskstore, error) {
	ds := &Diskstore{
		name:       name,
		useSnappy:  useSnappy,
		pos:        -1,
		keyMap:     make(map[types.HashStr]recordPos),
		bufferSize: bufferSize,
	}
	return ds, ds.readFile()
}

// OpenDiskstoreClear is the same as OpenDiskstore except it deletes any stored records.
func OpenDiskstoreClear(name string, useSnappy bool, bufferSize int) (*Diskstore, error) {
	ds := &Diskstore{
		name:       name,
		useSnappy:  useSnappy,
		pos:        -1,
		bufferSize: bufferSize,
	}
	return ds, ds.Clear()
}

// Contains returns true if a non empty value is stored for key.
func (ds *Diskstore) Contains(key types.HashStr) bool {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()
	val, ok := ds.keyMap[key]
	return ok && val.size > 0
}

// Len returns the number of keys written.
func (ds *Diskstore) Len() int {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()
	return len(ds.orderedKeys)
}

// Range calls f on the keys in the order they were first written, it stops if f returns false.
// Empty values are skipped.
func (ds *Diskstore) Range(f func(key types.HashStr, value []byte) bool) error {
	ds.mutex.Lock()
	keys := append([]types.HashStr(nil), ds.orderedKeys...)
	ds.mutex.Unlock()
	for _, k := range keys {
		v, err := ds.Read(k)
		if err != nil {
			return err
		}
		if len(v) == 0 {
			continue
		}
		if !f(k, v) {
			return nil
		}
	}
	return nil
}

// Read returns the value stored for key, it returns ErrNotFound if there is none.
func (ds *Diskstore) Read(key types.HashStr) ([]byte, error) {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()
	if ds.file == nil {
		return nil, types.ErrStoreClosed
	}
	val, ok := ds.keyMap[key]
	if !ok {
		return nil, fmt.Errorf("%w: key %v", types.ErrNotFound, key.Bytes().Short())
	}
	if err := ds.flush(); err != nil {
		return nil, err
	}
	ds.pos = -1

	buff := make([]byte, checksumLen+val.size)
	n, err := ds.file.ReadAt(buff, val.offset)
	if err != nil || n != len(buff) {
		return nil, fmt.Errorf("%w: reading record: %v", types.ErrCorruptRecord, err)
	}
	ret := buff[checksumLen:]
	if !checkSum(buff[:checksumLen], ret) {
		return nil, fmt.Errorf("%w: invalid checksum for key %v", types.ErrCorruptRecord, key.Bytes().Short())
	}
	if ds.useSnappy && len(ret) > 0 {
		if ret, err = snappy.Decode(nil, ret); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrCorruptRecord, err)
		}
	}
	return ret, nil
}

func checkSum(sum, value []byte) bool {
	hasher := adler32.New()
	if _, err := hasher.Write(value); err != nil {
		panic(err)
	}
	return string(hasher.Sum(nil)) == string(sum)
}

func (ds *Diskstore) flush() error {
	if ds.writer != nil && ds.writer.Buffered() > 0 {
		if err := ds.writer.Flush(); err != nil {
			logging.Error(err)
			return err
		}
	}
	return nil
}

// Close flushes to the disk, syncs the file and closes it.
func (ds *Diskstore) Close() error {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()
	var err error
	if ds.file != nil {
		if err = ds.flush(); err != nil {
			logging.Error(err)
		}
		if err = ds.file.Sync(); err != nil {
			logging.Error(err)
		}
		err = ds.file.Close()
	}
	ds.file = nil
	ds.keyMap = nil
	ds.orderedKeys = nil
	return err
}

// Clear deletes all the records.
func (ds *Diskstore) Clear() error {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()
	if ds.file != nil {
		if err := ds.file.Close(); err != nil {
			logging.Error(err)
		}
		ds.file = nil
	}
	ds.writer = nil
	if err := os.Remove(ds.name); err != nil && !os.IsNotExist(err) {
		return err
	}
	ds.keyMap = make(map[types.HashStr]recordPos)
	ds.orderedKeys = nil
	return ds.readFileLocked()
}

func (ds *Diskstore) internalWrite(val []byte) (int, error) {
	if ds.writer != nil {
		return ds.writer.Write(val)
	}
	return ds.file.Write(val)
}

// failWrite closes the file after a failed write, the store must be reopened.
func (ds *Diskstore) failWrite(msg string, err error) error {
	logging.Error(msg, err)
	if err2 := ds.file.Close(); err2 != nil {
		logging.Error(err2)
	}
	ds.file = nil
	return err
}

// Write stores value for key, a previous value for key is replaced.
func (ds *Diskstore) Write(key types.HashStr, value []byte) error {
	if len(key) != config.HashLen {
		return types.ErrInvalidKeySize
	}
	ds.mutex.Lock()
	defer ds.mutex.Unlock()
	if ds.file == nil {
		return types.ErrStoreClosed
	}
	if ds.pos == -1 {
		pos, err := ds.file.Seek(0, io.SeekEnd)
		if err != nil {
			return ds.failWrite("unable to seek", err)
		}
		ds.pos = pos
	}
	if ds.useSnappy && len(value) > 0 {
		value = snappy.Encode(nil, value)
	}
	hasher := adler32.New()
	if _, err := hasher.Write(value); err != nil {
		panic(err)
	}
	sizeBytes := make([]byte, 8)
	config.Encoding.PutUint64(sizeBytes, uint64(len(value)))

	var valuePosition int64
	for i, nxt := range [][]byte{[]byte(key), sizeBytes, hasher.Sum(nil), value} {
		if i == 2 {
			valuePosition = ds.pos
		}
		n, err := ds.internalWrite(nxt)
		if err != nil {
			return ds.failWrite("unable to write record", err)
		}
		ds.pos += int64(n)
	}
	if _, ok := ds.keyMap[key]; !ok {
		ds.orderedKeys = append(ds.orderedKeys, key)
	}
	ds.keyMap[key] = recordPos{offset: valuePosition, size: int64(len(value))}
	return nil
}

func (ds *Diskstore) readFile() error {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()
	return ds.readFileLocked()
}

// readFileLocked opens the file and loads the positions of the valid records.
func (ds *Diskstore) readFileLocked() error {
	file, err := os.OpenFile(ds.name, openType, 0666)
	if err != nil {
		logging.Error("error opening store: ", err)
		return err
	}
	ds.file = file
	if ds.bufferSize > 0 {
		ds.writer = bufio.NewWriterSize(file, ds.bufferSize)
	}
	reader := bufio.NewReader(file)
	var pos int64
	for {
		key := make([]byte, config.HashLen)
		if n, err := io.ReadFull(reader, key); err != nil {
			if n != 0 {
				logging.Warning("truncated key at the end of the store, got length: ", n)
			}
			break
		}
		sizeBytes := make([]byte, 8)
		if _, err := io.ReadFull(reader, sizeBytes); err != nil {
			logging.Warning("truncated record size at the end of the store")
			break
		}
		size := int64(config.Encoding.Uint64(sizeBytes))
		if size > config.MaxRecordSize || size < 0 {
			logging.Error("invalid record size ", size)
			break
		}
		record := make([]byte, checksumLen+size)
		if _, err := io.ReadFull(reader, record); err != nil {
			logging.Warning("truncated record at the end of the store")
			break
		}
		valuePosition := pos + int64(len(key)+len(sizeBytes))
		hkey := types.HashStr(key)
		if !checkSum(record[:checksumLen], record[checksumLen:]) {
			logging.Error("invalid checksum for key: ", hkey.Bytes().Short())
		} else {
			if _, ok := ds.keyMap[hkey]; !ok {
				ds.orderedKeys = append(ds.orderedKeys, hkey)
			}
			ds.keyMap[hkey] = recordPos{offset: valuePosition, size: size}
		}
		pos = valuePosition + int64(len(record))
	}
	if stat, err := file.Stat(); err == nil && stat.Size() > pos {
		logging.Warningf("truncating store %v from %v to %v bytes", ds.name, stat.Size(), pos)
		if err := file.Truncate(pos); err != nil {
			return err
		}
	}
	ds.pos = -1
	logging.Infof("opened store %v with %v keys", ds.name, len(ds.orderedKeys))
	return nil
}

// corruptIndex xors the byte at index in the file with val, for testing.
func (ds *Diskstore) corruptIndex(index int64, val byte) error {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()
	if err := ds.flush(); err != nil {
		return err
	}
	ds.pos = -1
	buff := make([]byte, 1)
	if _, err := ds.file.ReadAt(buff, index); err != nil {
		return err
	}
	buff[0] ^= val
	_, err := ds.file.WriteAt(buff, index)
	return err
}

// corruptValue changes the first byte of the value of key.
func (ds *Diskstore) corruptValue(key types.HashStr, corrupt byte) error {
	if val, ok := ds.keyMap[key]; ok {
		return ds.corruptIndex(val.offset+checksumLen, corrupt)
	}
	return types.ErrNotFound
}

// corruptHash changes the first byte of the checksum of key.
func (ds *Diskstore) corruptHash(key types.HashStr, corrupt byte) error {
	if val, ok := ds.keyMap[key]; ok {
		return ds.corruptIndex(val.offset, corrupt)
	}
	return types.ErrNotFound
}
