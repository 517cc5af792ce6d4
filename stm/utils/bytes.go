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
Package utils contains the byte encoding helpers used by the marshalling functions of the
other packages, and a seeded random source for reproducible keys.
All integers are encoded fixed width using config.Encoding, variable sized byte slices
are prefixed by their length as a uvarint.
*/
package utils

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/tcrain/stm/config"
)

var ErrInvalidBuffSize = fmt.Errorf("invalid buffer size")
var ErrTrailingBytes = fmt.Errorf("unexpected bytes after the encoded value")

// Uint64ToBytes returns the fixed width encoding of v.
func Uint64ToBytes(v uint64) []byte {
	ret := make([]byte, 8)
	config.Encoding.PutUint64(ret, v)
	return ret
}

// JoinBytes concatenates items into a new slice.
func JoinBytes(items ...[]byte) []byte {
	var size int
	for _, nxt := range items {
		size += len(nxt)
	}
	ret := make([]byte, 0, size)
	for _, nxt := range items {
		ret = append(ret, nxt...)
	}
	return ret
}

// CopyBuf returns a copy of buf, nil stays nil.
func CopyBuf(buf []byte) []byte {
	if buf == nil {
		return nil
	}
	ret := make([]byte, len(buf))
	copy(ret, buf)
	return ret
}

// CheckOverflow returns true if the sum of items would overflow.
func CheckOverflow(items ...uint64) bool {
	var total uint64
	for _, nxt := range items {
		if math.MaxUint64-nxt < total {
			return true
		}
		total += nxt
	}
	return false
}

func EncodeUint64(v uint64, writer io.Writer) (int, error) {
	var arr [8]byte
	config.Encoding.PutUint64(arr[:], v)
	return writer.Write(arr[:])
}

func EncodeUint32(v uint32, writer io.Writer) (int, error) {
	var arr [4]byte
	config.Encoding.PutUint32(arr[:], v)
	return writer.Write(arr[:])
}

func EncodeUvarint(v uint64, writer io.Writer) (int, error) {
	var arr [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(arr[:], v)
	return writer.Write(arr[:n])
}

func ReadUint64(reader io.Reader) (v uint64, n int, err error) {
	var arr [8]byte
	n, err = io.ReadFull(reader, arr[:])
	if err != nil {
		return
	}
	v = config.Encoding.Uint64(arr[:])
	return
}

func ReadUint32(reader io.Reader) (v uint32, n int, err error) {
	var arr [4]byte
	n, err = io.ReadFull(reader, arr[:])
	if err != nil {
		return
	}
	v = config.Encoding.Uint32(arr[:])
	return
}

// ReadUvarint reads a uvarint from a byte reader.
func ReadUvarint(reader io.ByteReader) (uint64, error) {
	return binary.ReadUvarint(reader)
}

// ReadBytes reads the given number of bytes into a new slice.
// An error is returned if less than n bytes are read.
func ReadBytes(n int, reader io.Reader) (buff []byte, err error) {
	buff = make([]byte, n)
	read, err := io.ReadFull(reader, buff)
	if err != nil {
		return nil, err
	}
	if read != n {
		return nil, ErrInvalidBuffSize
	}
	return
}

// EncodeHelper writes the size of the bytes followed by the bytes to the writer.
func EncodeHelper(arr []byte, writer io.Writer) (n int, err error) {
	var n1 int
	n1, err = EncodeUvarint(uint64(len(arr)), writer)
	n += n1
	if err != nil {
		return
	}
	n1, err = writer.Write(arr)
	n += n1
	return
}

// ByteReader is the reader type used by the decode helpers.
type ByteReader interface {
	io.Reader
	io.ByteReader
}

// DecodeHelper reads a slice written by EncodeHelper.
// A zero length slice is returned as nil.
func DecodeHelper(reader ByteReader) (buff []byte, err error) {
	size, err := ReadUvarint(reader)
	if err != nil {
		return
	}
	if size == 0 {
		return
	}
	if size > config.MaxRecordSize {
		return nil, ErrInvalidBuffSize
	}
	return ReadBytes(int(size), reader)
}

// EncodeString writes s using EncodeHelper.
func EncodeString(s string, writer io.Writer) (int, error) {
	return EncodeHelper([]byte(s), writer)
}

// DecodeString reads a string written by EncodeString.
func DecodeString(reader ByteReader) (string, error) {
	buff, err := DecodeHelper(reader)
	return string(buff), err
}

// CheckDone returns ErrTrailingBytes if the reader has not been fully consumed.
func CheckDone(reader io.ByteReader) error {
	if _, err := reader.ReadByte(); err != io.EOF {
		return ErrTrailingBytes
	}
	return nil
}
