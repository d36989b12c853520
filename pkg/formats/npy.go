package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/grainmesh/pkg/surfacemesh"
	"github.com/Faultbox/grainmesh/pkg/volume"
)

// NPY format errors.
var (
	ErrInvalidNPYMagic      = errors.New("invalid NPY magic: expected '\\x93NUMPY'")
	ErrUnsupportedNPYFormat = errors.New("unsupported NPY array")
	ErrTruncatedNPYData     = errors.New("truncated NPY data")
	ErrNPYValueRange        = errors.New("NPY value out of int32 range")
)

const npyMagic = "\x93NUMPY"

var (
	npyDescrRe   = regexp.MustCompile(`'descr'\s*:\s*'([<>|=])([iu])(\d)'`)
	npyFortranRe = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	npyShapeRe   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// NPYArray is an integer NumPy array widened to int32.
type NPYArray struct {
	// Descr is the NumPy dtype string, e.g. "<i4".
	Descr string
	Shape []int
	Data  []int32
}

// Dims maps a C-ordered (nz, ny, nx) or (ny, nx) shape onto grid dimensions.
func (a *NPYArray) Dims() (volume.Dims, error) {
	switch len(a.Shape) {
	case 2:
		return volume.Dims{a.Shape[1], a.Shape[0], 1}, nil
	case 3:
		return volume.Dims{a.Shape[2], a.Shape[1], a.Shape[0]}, nil
	}
	return volume.Dims{}, fmt.Errorf("%w: %d-D shape %v", ErrUnsupportedNPYFormat, len(a.Shape), a.Shape)
}

// ParseNPY parses a .npy file holding a C-ordered integer array.
func ParseNPY(data []byte) (*NPYArray, error) {
	if len(data) < 10 {
		return nil, ErrTruncatedNPYData
	}
	if string(data[:6]) != npyMagic {
		return nil, ErrInvalidNPYMagic
	}

	major := data[6]
	var headerLen, offset int
	switch major {
	case 1:
		headerLen = int(binary.LittleEndian.Uint16(data[8:10]))
		offset = 10
	case 2, 3:
		if len(data) < 12 {
			return nil, ErrTruncatedNPYData
		}
		headerLen = int(binary.LittleEndian.Uint32(data[8:12]))
		offset = 12
	default:
		return nil, fmt.Errorf("%w: version %d.%d", ErrUnsupportedNPYFormat, major, data[7])
	}
	if len(data) < offset+headerLen {
		return nil, fmt.Errorf("%w: header", ErrTruncatedNPYData)
	}
	header := string(data[offset : offset+headerLen])
	body := data[offset+headerLen:]

	m := npyDescrRe.FindStringSubmatch(header)
	if m == nil {
		return nil, fmt.Errorf("%w: dtype in %q", ErrUnsupportedNPYFormat, header)
	}
	var order binary.ByteOrder = binary.LittleEndian
	if m[1] == ">" {
		order = binary.BigEndian
	}
	signed := m[2] == "i"
	size, _ := strconv.Atoi(m[3])
	if size != 1 && size != 2 && size != 4 && size != 8 {
		return nil, fmt.Errorf("%w: dtype %s%s%s", ErrUnsupportedNPYFormat, m[1], m[2], m[3])
	}

	if f := npyFortranRe.FindStringSubmatch(header); f == nil || f[1] != "False" {
		return nil, fmt.Errorf("%w: fortran order", ErrUnsupportedNPYFormat)
	}

	s := npyShapeRe.FindStringSubmatch(header)
	if s == nil {
		return nil, fmt.Errorf("%w: shape in %q", ErrUnsupportedNPYFormat, header)
	}
	arr := &NPYArray{Descr: m[1] + m[2] + m[3]}
	// The element count never exceeds what the body can hold.
	limit := len(body) / size
	count := 1
	for _, field := range strings.Split(s[1], ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: shape %q", ErrUnsupportedNPYFormat, s[1])
		}
		if n != 0 && count > limit/n {
			return nil, fmt.Errorf("%w: shape %q needs more than %d bytes", ErrTruncatedNPYData, s[1], len(body))
		}
		arr.Shape = append(arr.Shape, n)
		count *= n
	}

	if len(body) < count*size {
		return nil, fmt.Errorf("%w: %d bytes for %d elements of size %d", ErrTruncatedNPYData, len(body), count, size)
	}
	arr.Data = make([]int32, count)
	for i := range arr.Data {
		v, err := decodeNPYInt(body[i*size:(i+1)*size], order, signed)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		arr.Data[i] = v
	}
	return arr, nil
}

func decodeNPYInt(b []byte, order binary.ByteOrder, signed bool) (int32, error) {
	var v int64
	switch len(b) {
	case 1:
		if signed {
			v = int64(int8(b[0]))
		} else {
			v = int64(b[0])
		}
	case 2:
		if signed {
			v = int64(int16(order.Uint16(b)))
		} else {
			v = int64(order.Uint16(b))
		}
	case 4:
		if signed {
			v = int64(int32(order.Uint32(b)))
		} else {
			v = int64(order.Uint32(b))
		}
	case 8:
		u := order.Uint64(b)
		if !signed && u > math.MaxInt32 {
			return 0, fmt.Errorf("%w: %d", ErrNPYValueRange, u)
		}
		v = int64(u)
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %d", ErrNPYValueRange, v)
	}
	return int32(v), nil
}

// ParseNPYFile parses a .npy file from disk.
func ParseNPYFile(path string) (*NPYArray, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading NPY file: %w", err)
	}
	return ParseNPY(data)
}

// WriteNPY writes data as a version 1.0 little-endian int32 array.
func WriteNPY(w io.Writer, shape []int, data []int32) error {
	count := 1
	dims := make([]string, len(shape))
	for i, n := range shape {
		count *= n
		dims[i] = strconv.Itoa(n)
	}
	if count != len(data) {
		return fmt.Errorf("shape %v holds %d elements, got %d", shape, count, len(data))
	}
	shapeStr := strings.Join(dims, ", ")
	if len(shape) == 1 {
		shapeStr += ","
	}
	header := fmt.Sprintf("{'descr': '<i4', 'fortran_order': False, 'shape': (%s), }", shapeStr)
	// Pad so magic, version, length and header end on a 64-byte boundary.
	pad := 64 - (10+len(header)+1)%64
	if pad == 64 {
		pad = 0
	}
	header += strings.Repeat(" ", pad) + "\n"

	buf := new(bytes.Buffer)
	buf.WriteString(npyMagic)
	buf.Write([]byte{1, 0})
	binary.Write(buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	binary.Write(buf, binary.LittleEndian, data)
	_, err := w.Write(buf.Bytes())
	return err
}

// NPYGrid builds a volume from a region array and an optional phase array of
// the same shape. A shape mismatch matches both volume.ErrInvalidGrid and
// surfacemesh.ErrInvalidInput.
func NPYGrid(regions, phases *NPYArray, res, origin r3.Vec) (*volume.Grid, error) {
	dims, err := regions.Dims()
	if err != nil {
		return nil, err
	}
	var phaseData []int32
	if phases != nil {
		pd, err := phases.Dims()
		if err != nil {
			return nil, fmt.Errorf("phase array: %w", err)
		}
		if pd != dims {
			return nil, fmt.Errorf("%w: %w: phase shape %v differs from region shape %v",
				surfacemesh.ErrInvalidInput, volume.ErrInvalidGrid, phases.Shape, regions.Shape)
		}
		phaseData = phases.Data
	}
	return volume.NewGrid(dims, res, origin, regions.Data, phaseData)
}
