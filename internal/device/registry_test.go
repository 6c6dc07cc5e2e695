package device

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

func TestRegistryRegistration(t *testing.T) {
	r, err := NewRegistry(NewGPTParser())
	require.NoError(t, err)

	err = r.Register(NewGPTParser())
	assert.True(t, errors.Is(err, types.KindInvalidState))
	err = r.Register(nil)
	assert.True(t, errors.Is(err, types.KindInvalidState))

	require.NoError(t, r.Register(&fixedParser{}))
	assert.Equal(t, []string{GPTParserName, "fixed"}, r.Names())

	p, ok := r.Lookup("fixed")
	require.True(t, ok)
	assert.Equal(t, "fixed", p.Name())
	_, ok = r.Lookup("apm")
	assert.False(t, ok)

	_, err = NewRegistry(NewGPTParser(), NewGPTParser())
	assert.Error(t, err)
}

func TestRegistryDispatch(t *testing.T) {
	gptDisk := bytes.NewReader(gptImage(t, 2048, testEntries()...))
	blank := bytes.NewReader(make([]byte, 2048*512))

	r := DefaultRegistry()
	assert.True(t, r.Probe(gptDisk, 512, 2048))
	assert.False(t, r.Probe(blank, 512, 2048))

	infos, err := r.Parse(gptDisk, 512, 2048)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "EFI", infos[0].Name)
	assert.True(t, infos[0].Readable)
	assert.True(t, infos[0].Writable)

	infos, err = r.Parse(blank, 512, 2048)
	require.NoError(t, err)
	assert.Empty(t, infos)

	// A later parser only sees devices the earlier ones rejected
	fallback := &fixedParser{infos: []types.PartitionInfo{{StartSector: 1, EndSector: 2}}}
	require.NoError(t, r.Register(fallback))

	infos, err = r.Parse(blank, 512, 2048)
	require.NoError(t, err)
	assert.Equal(t, fallback.infos, infos)

	infos, err = r.Parse(gptDisk, 512, 2048)
	require.NoError(t, err)
	assert.Len(t, infos, 2)
}

func TestGPTParserTruncatedDevice(t *testing.T) {
	p := NewGPTParser()

	assert.False(t, p.Probe(bytes.NewReader(make([]byte, 512)), 512, 1))
	infos, err := p.Parse(bytes.NewReader(make([]byte, 512)), 512, 1)
	require.NoError(t, err)
	assert.Empty(t, infos)

	// Header claims an entry array past the end of the device
	img := gptImage(t, 2048, testEntries()...)
	_, err = p.Parse(bytes.NewReader(img[:20*512]), 512, 20)
	assert.True(t, errors.Is(err, types.KindOutOfRange))
}
