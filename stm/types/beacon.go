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

package types

import (
	"bytes"
	"fmt"
	"io"

	"github.com/tcrain/stm/stm/utils"
)

// Beacon identifies the point of the external ledger a round certifies.
type Beacon struct {
	Network             string
	Epoch               Epoch
	ImmutableFileNumber uint64
}

func (b Beacon) String() string {
	return fmt.Sprintf("%v/%v/%v", b.Network, b.Epoch, b.ImmutableFileNumber)
}

// Compare orders beacons of the same network by epoch then immutable file number.
// It returns -1, 0 or 1, beacons of different networks are never ordered and return an error.
func (b Beacon) Compare(other Beacon) (int, error) {
	if b.Network != other.Network {
		return 0, fmt.Errorf("beacons of different networks %v and %v", b.Network, other.Network)
	}
	switch {
	case b.Epoch < other.Epoch:
		return -1, nil
	case b.Epoch > other.Epoch:
		return 1, nil
	case b.ImmutableFileNumber < other.ImmutableFileNumber:
		return -1, nil
	case b.ImmutableFileNumber > other.ImmutableFileNumber:
		return 1, nil
	}
	return 0, nil
}

// IsNewerThan returns true if b is of the same network and strictly after other.
func (b Beacon) IsNewerThan(other Beacon) bool {
	c, err := b.Compare(other)
	return err == nil && c > 0
}

func (b Beacon) Encode(writer io.Writer) (n int, err error) {
	var n1 int
	if n1, err = utils.EncodeString(b.Network, writer); err != nil {
		return
	}
	n += n1
	if n1, err = utils.EncodeUint64(uint64(b.Epoch), writer); err != nil {
		return
	}
	n += n1
	n1, err = utils.EncodeUint64(b.ImmutableFileNumber, writer)
	n += n1
	return
}

func (b *Beacon) Decode(reader utils.ByteReader) (err error) {
	if b.Network, err = utils.DecodeString(reader); err != nil {
		return
	}
	var v uint64
	if v, _, err = utils.ReadUint64(reader); err != nil {
		return
	}
	b.Epoch = Epoch(v)
	b.ImmutableFileNumber, _, err = utils.ReadUint64(reader)
	return
}

func (b Beacon) MarshalBinary() ([]byte, error) {
	writer := bytes.NewBuffer(nil)
	_, err := b.Encode(writer)
	return writer.Bytes(), err
}
