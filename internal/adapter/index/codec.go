package index

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"

	"doccatalog/internal/domain"
)

// Compression selects how index files are compressed on disk.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionZstd Compression = 1
	CompressionLZ4  Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression maps a config value to a Compression. Empty means zstd.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zstd":
		return CompressionZstd, nil
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, zstd or lz4)", s)
	}
}

// File layout:
//
//	[4B magic "DCIX"] [1B version] [1B compression]
//	[payload: msgpack(fileBody), compressed as declared]
var fileMagic = [4]byte{'D', 'C', 'I', 'X'}

const fileVersion uint8 = 1

var errBadHeader = errors.New("index file: bad header")

type fileBody struct {
	Dim     int         `msgpack:"dim"`
	Entries []fileEntry `msgpack:"entries"`
}

type fileEntry struct {
	ID       string         `msgpack:"id"`
	Text     string         `msgpack:"text"`
	Vector   []float32      `msgpack:"v"`
	Metadata map[string]any `msgpack:"m,omitempty"`
}

func encodeIndex(w io.Writer, ix *FlatIndex, c Compression) error {
	bw := bufio.NewWriter(w)
	header := append(fileMagic[:], fileVersion, byte(c))
	if _, err := bw.Write(header); err != nil {
		return fmt.Errorf("index file: write header: %w", err)
	}

	var (
		payload io.Writer = bw
		closer  io.Closer
	)
	switch c {
	case CompressionNone:
	case CompressionZstd:
		enc, err := zstd.NewWriter(bw)
		if err != nil {
			return fmt.Errorf("index file: zstd writer: %w", err)
		}
		payload, closer = enc, enc
	case CompressionLZ4:
		lw := lz4.NewWriter(bw)
		payload, closer = lw, lw
	default:
		return fmt.Errorf("index file: unsupported compression %s", c)
	}

	body := fileBody{Dim: ix.dim, Entries: make([]fileEntry, len(ix.entries))}
	for i, e := range ix.entries {
		body.Entries[i] = fileEntry{
			ID:       e.id,
			Text:     e.text,
			Vector:   e.vector,
			Metadata: e.metadata.Plain(),
		}
	}
	if err := msgpack.NewEncoder(payload).Encode(&body); err != nil {
		return fmt.Errorf("index file: encode: %w", err)
	}
	if closer != nil {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("index file: flush %s: %w", c, err)
		}
	}
	return bw.Flush()
}

func decodeIndex(r io.Reader) (*FlatIndex, error) {
	br := bufio.NewReader(r)
	header := make([]byte, len(fileMagic)+2)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadHeader, err)
	}
	if [4]byte(header[:4]) != fileMagic {
		return nil, fmt.Errorf("%w: magic %q", errBadHeader, header[:4])
	}
	if header[4] != fileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", errBadHeader, header[4])
	}

	var payload io.Reader = br
	switch c := Compression(header[5]); c {
	case CompressionNone:
	case CompressionZstd:
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("index file: zstd reader: %w", err)
		}
		defer dec.Close()
		payload = dec
	case CompressionLZ4:
		payload = lz4.NewReader(br)
	default:
		return nil, fmt.Errorf("%w: unsupported compression %s", errBadHeader, c)
	}

	var body fileBody
	if err := msgpack.NewDecoder(payload).Decode(&body); err != nil {
		return nil, fmt.Errorf("index file: decode: %w", err)
	}

	ix := &FlatIndex{dim: body.Dim, entries: make([]entry, len(body.Entries))}
	for i, fe := range body.Entries {
		if len(fe.Vector) != body.Dim {
			return nil, fmt.Errorf("index file: entry %q has dimension %d, header says %d", fe.ID, len(fe.Vector), body.Dim)
		}
		md, err := domain.MetadataFromPlain(fe.Metadata)
		if err != nil {
			return nil, fmt.Errorf("index file: entry %q: %w", fe.ID, err)
		}
		ix.entries[i] = entry{id: fe.ID, text: fe.Text, vector: fe.Vector, metadata: md}
	}
	return ix, nil
}
