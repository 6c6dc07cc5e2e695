package logging

import "go.uber.org/zap"

const (
	PathKey        = "path"
	SectorSizeKey  = "sector_size"
	SectorCountKey = "sector_count"
	LBAKey         = "lba"
	StateKey       = "state"
	PartitionIDKey = "partition_id"
)

func WithPath(path string) zap.Field {
	return zap.String(PathKey, path)
}

func WithSectorSize(size uint32) zap.Field {
	return zap.Uint32(SectorSizeKey, size)
}

func WithSectorCount(count uint64) zap.Field {
	return zap.Uint64(SectorCountKey, count)
}

func WithLBA(lba uint64) zap.Field {
	return zap.Uint64(LBAKey, lba)
}

func WithState(state string) zap.Field {
	return zap.String(StateKey, state)
}

func WithPartitionID(id uint64) zap.Field {
	return zap.Uint64(PartitionIDKey, id)
}
