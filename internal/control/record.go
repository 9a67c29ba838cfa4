// Package control implements the control channel: a fixed size binary
// request record carried over a named pipe.
package control

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"

	"github.com/spin-stack/procsnap/internal/iobuf"
	"github.com/spin-stack/procsnap/internal/snapshot"
)

const (
	// RecordSize is the exact size of one request record. It equals
	// PIPE_BUF, so one record is one atomic pipe write.
	RecordSize = iobuf.Size

	headerSize = 8

	// MaxDirectorySize is the room for the output directory including its
	// terminating NUL.
	MaxDirectorySize = RecordSize - headerSize
)

// Encode serializes req into a RecordSize byte record.
func Encode(req snapshot.OperationRequest) ([]byte, error) {
	buf := make([]byte, RecordSize)
	if err := EncodeTo(buf, req); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeTo serializes req into buf, which must be RecordSize bytes.
func EncodeTo(buf []byte, req snapshot.OperationRequest) error {
	if len(buf) != RecordSize {
		return fmt.Errorf("record buffer is %d bytes, want %d: %w", len(buf), RecordSize, errdefs.ErrInvalidArgument)
	}
	dir := req.OutputDirectory
	if len(dir) >= MaxDirectorySize {
		return fmt.Errorf("output directory is %d bytes, limit %d: %w", len(dir), MaxDirectorySize-1, errdefs.ErrInvalidArgument)
	}
	if strings.IndexByte(dir, 0) >= 0 {
		return fmt.Errorf("output directory contains NUL: %w", errdefs.ErrInvalidArgument)
	}

	binary.LittleEndian.PutUint32(buf[0:4], uint32(req.Command))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(req.TargetID))
	n := copy(buf[headerSize:], dir)
	clear(buf[headerSize+n:])
	return nil
}

// Decode parses one record.
func Decode(rec []byte) (snapshot.OperationRequest, error) {
	if len(rec) != RecordSize {
		return snapshot.OperationRequest{}, fmt.Errorf("record is %d bytes, want %d: %w", len(rec), RecordSize, errdefs.ErrInvalidArgument)
	}
	dir := rec[headerSize:]
	end := bytes.IndexByte(dir, 0)
	if end < 0 {
		return snapshot.OperationRequest{}, fmt.Errorf("output directory is not NUL terminated: %w", errdefs.ErrInvalidArgument)
	}
	return snapshot.OperationRequest{
		Command:         snapshot.Command(binary.LittleEndian.Uint32(rec[0:4])),
		TargetID:        int32(binary.LittleEndian.Uint32(rec[4:8])),
		OutputDirectory: string(dir[:end]),
	}, nil
}
