package inspect

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-gptdisk/internal/device"
	"github.com/deploymenttheory/go-gptdisk/internal/disk"
	"github.com/deploymenttheory/go-gptdisk/internal/layout"
	"github.com/deploymenttheory/go-gptdisk/internal/parsers/gpt"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
	"github.com/deploymenttheory/go-gptdisk/pkg/app"
)

const testPath = "disk0"

var testDiskGUID = uuid.MustParse("0A0B0C0D-1111-2222-3333-444455556666")

// gptBackend returns a backend holding a 2048-sector disk with a complete
// two-partition layout.
func gptBackend(t *testing.T) *disk.MemoryBackend {
	t.Helper()

	backend := disk.NewMemoryBackend()
	backend.AddDisk(testPath, 512, 2048, types.DeviceKindImage)

	d := device.New(testPath, backend, nil)
	require.NoError(t, d.Initialize())
	s, err := d.CreateStream(types.AccessReadWrite)
	require.NoError(t, err)
	defer s.Close()

	h, err := gpt.NewDefaultHeader(2048, 512, testDiskGUID)
	require.NoError(t, err)
	arr := types.NewEntryArray()
	arr.Entries = []types.GPTEntry{
		{TypeGUID: types.PartitionTypeEFISystem, UniqueGUID: uuid.New(), FirstLBA: 34, LastLBA: 233, Name: "EFI"},
		{TypeGUID: types.PartitionTypeLinuxFilesystem, UniqueGUID: uuid.New(), FirstLBA: 234, LastLBA: 2014, Name: "root"},
	}
	_, err = layout.NewWriter().WriteLayout(s, h, arr)
	require.NoError(t, err)
	return backend
}

// overlappingBackend returns gptBackend's layout with the second entry moved to
// start inside the first in both copies. Both copies still pass their CRC32 checks.
func overlappingBackend(t *testing.T) *disk.MemoryBackend {
	t.Helper()

	img := gptBackend(t).Bytes(testPath)
	for _, lba := range []int{2, 2015} {
		binary.LittleEndian.PutUint64(img[lba*512+128+32:], 100)
	}
	sum := crc32.ChecksumIEEE(img[2*512 : 34*512])
	for _, lba := range []int{1, 2047} {
		h, err := gpt.DecodeHeader(img[lba*512 : (lba+1)*512])
		require.NoError(t, err)
		h.EntryArrayCRC32 = sum
		gpt.SealHeader(h)
		copy(img[lba*512:], gpt.EncodeHeaderSector(h, 512))
	}

	b := disk.NewMemoryBackend()
	b.AddImage(testPath, img, 512, types.DeviceKindImage)
	return b
}

func TestHandle(t *testing.T) {
	tests := []struct {
		name     string
		backend  func(t *testing.T) *disk.MemoryBackend
		request  Request
		validate func(*testing.T, *Response)
	}{
		{
			name:    "healthy GPT",
			backend: gptBackend,
			validate: func(t *testing.T, resp *Response) {
				assert.Equal(t, uint64(2048), resp.Device.SectorCount)
				assert.Equal(t, "image", resp.Device.Kind)
				assert.True(t, resp.Device.HasGPT)
				require.NotNil(t, resp.Header)
				assert.Equal(t, "primary", resp.Header.Source)
				assert.Equal(t, "0A0B0C0D-1111-2222-3333-444455556666", resp.Header.DiskGUID)
				assert.Equal(t, "1.0", resp.Header.Revision)
				require.NotNil(t, resp.Verify)
				assert.True(t, resp.Verify.Healthy)
				assert.Empty(t, resp.DiscoveryError)

				require.Len(t, resp.Partitions, 2)
				assert.Equal(t, uint64(1), resp.Partitions[0].ID)
				assert.Equal(t, "EFI System", resp.Partitions[0].TypeName)
				assert.Equal(t, uint64(200*512), resp.Partitions[0].Size)
				assert.Equal(t, "root", resp.Partitions[1].Name)
			},
		},
		{
			name:    "skip verify",
			backend: gptBackend,
			request: Request{SkipVerify: true},
			validate: func(t *testing.T, resp *Response) {
				assert.Nil(t, resp.Verify)
				require.NotNil(t, resp.Header)
				assert.Equal(t, uint64(1), resp.Header.MyLBA)
				assert.Len(t, resp.Partitions, 2)
			},
		},
		{
			name: "blank disk",
			backend: func(t *testing.T) *disk.MemoryBackend {
				b := disk.NewMemoryBackend()
				b.AddDisk(testPath, 512, 2048, types.DeviceKindUSB)
				return b
			},
			validate: func(t *testing.T, resp *Response) {
				assert.Equal(t, "usb", resp.Device.Kind)
				assert.False(t, resp.Device.HasGPT)
				assert.Nil(t, resp.Header)
				assert.Empty(t, resp.Partitions)
				require.NotNil(t, resp.Verify)
				assert.False(t, resp.Verify.PrimaryOK)
				assert.False(t, resp.Verify.BackupOK)
			},
		},
		{
			name: "damaged primary falls back to backup",
			backend: func(t *testing.T) *disk.MemoryBackend {
				img := gptBackend(t).Bytes(testPath)
				img[512+40] ^= 0xFF
				b := disk.NewMemoryBackend()
				b.AddImage(testPath, img, 512, types.DeviceKindImage)
				return b
			},
			validate: func(t *testing.T, resp *Response) {
				assert.NotEmpty(t, resp.DiscoveryError)
				require.Len(t, resp.Partitions, 2)
				assert.Equal(t, uint64(2), resp.Partitions[1].ID)
				assert.Equal(t, "root", resp.Partitions[1].Name)
				assert.Empty(t, resp.Partitions[1].Issues)
				require.NotNil(t, resp.Header)
				assert.Equal(t, "backup", resp.Header.Source)
				assert.Equal(t, uint64(2047), resp.Header.MyLBA)
				assert.False(t, resp.Verify.PrimaryOK)
				assert.True(t, resp.Verify.BackupOK)
				assert.NotEmpty(t, resp.Verify.PrimaryError)
			},
		},
		{
			name:    "overlapping entries are listed with their issues",
			backend: overlappingBackend,
			validate: func(t *testing.T, resp *Response) {
				assert.Contains(t, resp.DiscoveryError, "overlapping-entries")
				require.NotNil(t, resp.Verify)
				assert.True(t, resp.Verify.Healthy)
				require.Len(t, resp.Partitions, 2)
				assert.Empty(t, resp.Partitions[0].Issues)
				require.Len(t, resp.Partitions[1].Issues, 1)
				assert.Contains(t, resp.Partitions[1].Issues[0], "overlapping-entries")
				assert.Equal(t, uint64(100), resp.Partitions[1].StartSector)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.request
			req.Target = app.DeviceTarget{Path: testPath}
			req.Backend = tt.backend(t)

			ctx := app.NewContext()
			var steps []int
			ctx.SetProgress(func(_ string, percent int) { steps = append(steps, percent) })

			resp, err := Handle(ctx, &req)
			require.NoError(t, err)
			tt.validate(t, resp)
			assert.Equal(t, 100, steps[len(steps)-1])
		})
	}
}

func TestHandle_Errors(t *testing.T) {
	ctx := app.NewContext()

	_, err := Handle(ctx, &Request{})
	var ce *app.CommonError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, app.ErrCodeInvalidInput, ce.Code)

	_, err = Handle(ctx, &Request{Target: app.DeviceTarget{Path: "missing"}, Backend: disk.NewMemoryBackend()})
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, app.ErrCodeDeviceAccess, ce.Code)
	assert.True(t, errors.Is(err, types.KindBackendFailure))
}

func TestHandle_CustomTypeRegistry(t *testing.T) {
	registry := types.NewTypeRegistry()
	custom := uuid.MustParse("DEADBEEF-0000-4000-8000-000000000001")
	require.NoError(t, registry.Register(custom, "Vendor Scratch"))

	backend := disk.NewMemoryBackend()
	backend.AddDisk(testPath, 512, 2048, types.DeviceKindImage)
	d := device.New(testPath, backend, nil)
	require.NoError(t, d.Initialize())
	s, err := d.CreateStream(types.AccessReadWrite)
	require.NoError(t, err)
	h, err := gpt.NewDefaultHeader(2048, 512, testDiskGUID)
	require.NoError(t, err)
	arr := types.NewEntryArray()
	arr.Entries = []types.GPTEntry{{TypeGUID: custom, UniqueGUID: uuid.New(), FirstLBA: 40, LastLBA: 99, Name: "scratch"}}
	_, err = layout.NewWriter().WriteLayout(s, h, arr)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	resp, err := Handle(app.NewContext(), &Request{Target: app.DeviceTarget{Path: testPath}, Backend: backend, Types: registry})
	require.NoError(t, err)
	require.Len(t, resp.Partitions, 1)
	assert.Equal(t, "Vendor Scratch", resp.Partitions[0].TypeName)

	resp, err = Handle(app.NewContext(), &Request{Target: app.DeviceTarget{Path: testPath}, Backend: backend})
	require.NoError(t, err)
	assert.Equal(t, "DEADBEEF-0000-4000-8000-000000000001", resp.Partitions[0].TypeName)
}
