package vector

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrMalformed is returned by Load for data that is not a valid serialized
// index.
var ErrMalformed = errors.New("malformed vector index")

var (
	flatMagic = [4]byte{'F', 'L', 'A', 'T'}
	hnswMagic = [4]byte{'H', 'N', 'S', 'W'}
)

const formatVersion uint32 = 1

// Sanity limits for decoding; anything larger is treated as corruption rather
// than allocated.
const (
	maxDim       = 1 << 16
	maxSlots     = 1 << 26
	maxNeighbors = 1 << 10
)

// Decoding grows buffers as data arrives, so a header claiming more than the
// input holds fails at EOF instead of allocating up front.
const (
	readChunk   = 1 << 14
	preallocCap = 1 << 12
)

// Save writes the flat index.
//
// Format (little endian):
//
//	[4B magic "FLAT"] [4B version] [4B dim] [4B count]
//	[count × dim × 4B float32]
func (f *Flat) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(flatMagic[:]); err != nil {
		return fmt.Errorf("save magic: %w", err)
	}
	for _, v := range []uint32{formatVersion, uint32(f.dim), uint32(f.n)} {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("save header: %w", err)
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, f.data); err != nil {
		return fmt.Errorf("save vectors: %w", err)
	}
	return bw.Flush()
}

// Save writes the graph with its vectors.
//
// Format (little endian):
//
//	[4B magic "HNSW"] [4B version]
//	[4B dim] [4B M] [4B efConstruction] [4B efSearch] [8B seed]
//	[4B count] [4B maxLevel] [4B entry]
//	For each slot:
//	  [4B level] [dim × 4B float32 vector]
//	  For each layer 0..level:
//	    [4B numFriends] [numFriends × 4B friend slots]
func (h *HNSW) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	le := binary.LittleEndian
	write := func(v any) error { return binary.Write(bw, le, v) }

	if _, err := bw.Write(hnswMagic[:]); err != nil {
		return fmt.Errorf("save magic: %w", err)
	}
	for _, v := range []uint32{
		formatVersion,
		uint32(h.dim),
		uint32(h.cfg.M),
		uint32(h.cfg.EfConstruction),
		uint32(h.cfg.EfSearch),
	} {
		if err := write(v); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
	}
	if err := write(h.cfg.Seed); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	for _, v := range []uint32{uint32(len(h.vectors)), uint32(h.maxLevel)} {
		if err := write(v); err != nil {
			return fmt.Errorf("save header: %w", err)
		}
	}
	if err := write(h.entry); err != nil {
		return fmt.Errorf("save header: %w", err)
	}

	for slot, vec := range h.vectors {
		if err := write(uint32(h.levels[slot])); err != nil {
			return fmt.Errorf("save node %d: %w", slot, err)
		}
		if err := write(vec); err != nil {
			return fmt.Errorf("save node %d: %w", slot, err)
		}
		for lev := 0; lev <= h.levels[slot]; lev++ {
			friends := h.friends[slot][lev]
			if err := write(uint32(len(friends))); err != nil {
				return fmt.Errorf("save node %d: %w", slot, err)
			}
			if err := write(friends); err != nil {
				return fmt.Errorf("save node %d: %w", slot, err)
			}
		}
	}
	return bw.Flush()
}

// Shape is the dimension and vector count a caller expects to load. Zero
// fields are not checked.
type Shape struct {
	Dim   int
	Count int
}

// Load reads an index written by Flat.Save or HNSW.Save, dispatching on the
// magic header. Any decoding problem is reported as ErrMalformed.
func Load(r io.Reader) (Index, error) {
	return LoadShape(r, Shape{})
}

// LoadShape is Load with the header checked against want before any vector
// data is read.
func LoadShape(r io.Reader, want Shape) (Index, error) {
	br := bufio.NewReader(r)
	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: read magic: %v", ErrMalformed, err)
	}

	var (
		idx Index
		err error
	)
	switch magic {
	case flatMagic:
		idx, err = loadFlat(br, want)
	case hnswMagic:
		idx, err = loadHNSW(br, want)
	default:
		return nil, fmt.Errorf("%w: unknown magic %q", ErrMalformed, magic[:])
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return idx, nil
}

func readVersion(r io.Reader) error {
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if version != formatVersion {
		return fmt.Errorf("unsupported version %d (want %d)", version, formatVersion)
	}
	return nil
}

func checkShape(dim, n uint32, want Shape) error {
	if dim == 0 || dim > maxDim {
		return fmt.Errorf("invalid dimension %d", dim)
	}
	if n == 0 || n > maxSlots {
		return fmt.Errorf("invalid vector count %d", n)
	}
	if want.Dim > 0 && int(dim) != want.Dim {
		return fmt.Errorf("dimension %d, want %d", dim, want.Dim)
	}
	if want.Count > 0 && int(n) != want.Count {
		return fmt.Errorf("vector count %d, want %d", n, want.Count)
	}
	return nil
}

// readFloats reads total float32 values in bounded chunks.
func readFloats(r io.Reader, total int) ([]float32, error) {
	if total <= readChunk {
		out := make([]float32, total)
		if err := binary.Read(r, binary.LittleEndian, out); err != nil {
			return nil, err
		}
		return out, nil
	}
	out := make([]float32, 0, min(total, preallocCap))
	buf := make([]float32, min(total, readChunk))
	for len(out) < total {
		chunk := buf[:min(len(buf), total-len(out))]
		if err := binary.Read(r, binary.LittleEndian, chunk); err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func loadFlat(r io.Reader, want Shape) (*Flat, error) {
	if err := readVersion(r); err != nil {
		return nil, err
	}
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dim: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	if err := checkShape(dim, n, want); err != nil {
		return nil, err
	}

	data, err := readFloats(r, int(n)*int(dim))
	if err != nil {
		return nil, fmt.Errorf("read vectors: %w", err)
	}
	if err := expectEOF(r); err != nil {
		return nil, err
	}
	return &Flat{dim: int(dim), n: int(n), data: data}, nil
}

func loadHNSW(r io.Reader, want Shape) (*HNSW, error) {
	le := binary.LittleEndian
	read := func(v any) error { return binary.Read(r, le, v) }

	if err := readVersion(r); err != nil {
		return nil, err
	}
	var dim, m, efC, efS uint32
	for _, p := range []*uint32{&dim, &m, &efC, &efS} {
		if err := read(p); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var seed uint64
	if err := read(&seed); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var n, maxLevel uint32
	var entry int32
	if err := read(&n); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := read(&maxLevel); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := read(&entry); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := checkShape(dim, n, want); err != nil {
		return nil, err
	}
	if m > maxNeighbors/2 {
		return nil, fmt.Errorf("invalid M %d", m)
	}
	if maxLevel > maxHNSWLevel {
		return nil, fmt.Errorf("invalid max level %d", maxLevel)
	}
	if entry < 0 || uint32(entry) >= n {
		return nil, fmt.Errorf("entry point %d out of range", entry)
	}

	h := &HNSW{
		cfg: HNSWConfig{
			M:              int(m),
			EfConstruction: int(efC),
			EfSearch:       int(efS),
			Seed:           seed,
		},
		dim:      int(dim),
		vectors:  make([][]float32, 0, min(n, preallocCap)),
		levels:   make([]int, 0, min(n, preallocCap)),
		friends:  make([][][]int32, 0, min(n, preallocCap)),
		entry:    entry,
		maxLevel: int(maxLevel),
	}
	h.cfg.setDefaults()

	maxFriends := uint32(h.cfg.maxConns(0))
	for slot := 0; slot < int(n); slot++ {
		var level uint32
		if err := read(&level); err != nil {
			return nil, fmt.Errorf("read node %d: %w", slot, err)
		}
		if level > maxLevel {
			return nil, fmt.Errorf("node %d level %d exceeds max level %d", slot, level, maxLevel)
		}
		vec, err := readFloats(r, int(dim))
		if err != nil {
			return nil, fmt.Errorf("read node %d: %w", slot, err)
		}
		h.vectors = append(h.vectors, vec)
		h.levels = append(h.levels, int(level))
		h.friends = append(h.friends, make([][]int32, level+1))

		for lev := range h.friends[slot] {
			var count uint32
			if err := read(&count); err != nil {
				return nil, fmt.Errorf("read node %d: %w", slot, err)
			}
			if count > n || count > maxFriends {
				return nil, fmt.Errorf("node %d has %d neighbors, index has %d nodes", slot, count, n)
			}
			friends := make([]int32, count)
			if err := read(friends); err != nil {
				return nil, fmt.Errorf("read node %d: %w", slot, err)
			}
			for _, f := range friends {
				if f < 0 || uint32(f) >= n {
					return nil, fmt.Errorf("node %d links to out-of-range slot %d", slot, f)
				}
			}
			h.friends[slot][lev] = friends
		}
	}

	// Every neighbor at layer l must itself exist on layer l.
	for slot, layers := range h.friends {
		for lev, friends := range layers {
			for _, f := range friends {
				if h.levels[f] < lev {
					return nil, fmt.Errorf("node %d links to slot %d above its level", slot, f)
				}
			}
		}
	}
	if h.levels[entry] != h.maxLevel {
		return nil, fmt.Errorf("entry point %d is not on the top layer", entry)
	}
	if err := expectEOF(r); err != nil {
		return nil, err
	}
	return h, nil
}

func expectEOF(r io.Reader) error {
	var b [1]byte
	if n, _ := r.Read(b[:]); n != 0 {
		return errors.New("trailing data after index")
	}
	return nil
}
