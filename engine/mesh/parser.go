package mesh

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrUnknownRecord is wrapped by AssetLoadError when a description contains an unrecognised record.
var ErrUnknownRecord = errors.New("unknown record")

// AssetLoadError reports a mesh description that could not be read or parsed. Nothing from the
// failing description is registered.
type AssetLoadError struct {
	Path string
	Err  error
}

func (e *AssetLoadError) Error() string {
	return fmt.Sprintf("load mesh %s: %v", e.Path, e.Err)
}

func (e *AssetLoadError) Unwrap() error {
	return e.Err
}

// record arities of the description format.
var recordArity = map[string]int{
	"vertex":   3,
	"normal":   3,
	"tangent":  4,
	"texcoord": 2,
	"triangle": 3,
}

// ParseMesh reads a whitespace-separated mesh description:
//
//	vertex x y z
//	normal x y z
//	tangent x y z w
//	texcoord u v
//	triangle a b c
//
// Triangles are stored with reversed winding (c b a).
//
// Parameters:
//   - name: the description's name, used in errors
//   - r: the description source
//
// Returns:
//   - MeshData: the parsed geometry
//   - error: an *AssetLoadError on read failure, a malformed number or an unknown record
func ParseMesh(name string, r io.Reader) (MeshData, error) {
	var data MeshData

	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)

	var args [4]float64
	var idx [3]uint16
	for sc.Scan() {
		record := sc.Text()
		arity, ok := recordArity[record]
		if !ok {
			return MeshData{}, &AssetLoadError{Path: name, Err: fmt.Errorf("%w %q", ErrUnknownRecord, record)}
		}

		for i := range arity {
			if !sc.Scan() {
				err := sc.Err()
				if err == nil {
					err = io.ErrUnexpectedEOF
				}
				return MeshData{}, &AssetLoadError{Path: name, Err: fmt.Errorf("%s record: %w", record, err)}
			}
			tok := sc.Text()
			if record == "triangle" {
				v, err := strconv.ParseUint(tok, 10, 16)
				if err != nil {
					return MeshData{}, &AssetLoadError{Path: name, Err: fmt.Errorf("triangle record: %w", err)}
				}
				idx[i] = uint16(v)
				continue
			}
			v, err := strconv.ParseFloat(tok, 32)
			if err != nil {
				return MeshData{}, &AssetLoadError{Path: name, Err: fmt.Errorf("%s record: %w", record, err)}
			}
			args[i] = v
		}

		switch record {
		case "vertex":
			data.Positions = append(data.Positions, [3]float32{float32(args[0]), float32(args[1]), float32(args[2])})
		case "normal":
			data.Normals = append(data.Normals, [3]float32{float32(args[0]), float32(args[1]), float32(args[2])})
		case "tangent":
			data.Tangents = append(data.Tangents, [4]float32{float32(args[0]), float32(args[1]), float32(args[2]), float32(args[3])})
		case "texcoord":
			data.TexCoords = append(data.TexCoords, [2]float32{float32(args[0]), float32(args[1])})
		case "triangle":
			data.Indices = append(data.Indices, idx[2], idx[1], idx[0])
		}
	}
	if err := sc.Err(); err != nil {
		return MeshData{}, &AssetLoadError{Path: name, Err: err}
	}

	return data, nil
}
