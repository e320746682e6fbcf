package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashString(t *testing.T) {
	assert.Equal(t, strings.Repeat("00", HashSize), GenesisHash.String())
	assert.True(t, GenesisHash.IsGenesis())

	h, err := NewHashFromString("ff" + strings.Repeat("00", HashSize-1))
	require.NoError(t, err)
	assert.Equal(t, byte(0xff), h[0])
	assert.False(t, h.IsGenesis())
	assert.True(t, GenesisHash.Less(h))

	_, err = NewHashFromString("abcd")
	assert.Error(t, err)
	_, err = NewHashFromString(strings.Repeat("zz", HashSize))
	assert.Error(t, err)
	_, err = NewHashFromBytes(make([]byte, 31))
	assert.Error(t, err)
}

func TestBeadJSONUsesHexHashes(t *testing.T) {
	var parent Hash
	parent[31] = 1
	bead := &Bead{Hash: Hash{0xab}, Parents: []Hash{parent}, Difficulty: 3}

	data, err := json.Marshal(bead)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"hash":"ab00`)
	assert.Contains(t, string(data), `"parents":["`+parent.String()+`"]`)
}

func TestCloneIsDeep(t *testing.T) {
	bead := &Bead{Hash: Hash{1}, Parents: []Hash{GenesisHash}, Payout: []byte("p")}
	c := bead.Clone()
	c.Parents[0] = Hash{9}
	c.Payout[0] = 'x'
	assert.Equal(t, GenesisHash, bead.Parents[0])
	assert.Equal(t, []byte("p"), bead.Payout)
}

func TestSortHashes(t *testing.T) {
	hashes := []Hash{{3}, {1}, {2}}
	SortHashes(hashes)
	assert.Equal(t, []Hash{{1}, {2}, {3}}, hashes)
}
