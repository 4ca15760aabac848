package export

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// tensorInfo is one entry of the safetensors header: dtype, shape and the
// byte range of the tensor payload, relative to the start of the data section.
type tensorInfo struct {
	DType  string   `json:"dtype"`
	Shape  []int    `json:"shape"`
	Offset [2]int64 `json:"data_offsets"`
}

// safetensorsDType maps a GoMLX dtype to its safetensors name.
func safetensorsDType(dtype dtypes.DType) (string, error) {
	switch dtype {
	case dtypes.Float32:
		return "F32", nil
	case dtypes.Float64:
		return "F64", nil
	case dtypes.Float16:
		return "F16", nil
	case dtypes.BFloat16:
		return "BF16", nil
	case dtypes.Int8:
		return "I8", nil
	case dtypes.Int32:
		return "I32", nil
	case dtypes.Int64:
		return "I64", nil
	case dtypes.Uint8:
		return "U8", nil
	case dtypes.Bool:
		return "BOOL", nil
	}
	return "", errors.Errorf("dtype %s has no safetensors equivalent", dtype)
}

// tensorName converts a variable's scope and name to the flat dot-separated
// name used in the safetensors header. The leading "/model/" scope prefix is
// dropped since every exported variable carries it.
func tensorName(v *context.Variable) string {
	scope := strings.TrimPrefix(v.Scope(), "/model")
	scope = strings.Trim(scope, "/")
	parts := strings.Split(scope, "/")
	parts = append(parts, v.Name())
	return strings.Join(parts, ".")
}

// isModelVariable reports whether the variable belongs to the model graph
// itself, as opposed to optimizer or loop bookkeeping state.
func isModelVariable(v *context.Variable) bool {
	scope := v.Scope()
	if !strings.HasPrefix(scope, "/model") {
		return false
	}
	if strings.Contains(scope, "/"+optimizers.Scope) {
		return false
	}
	return v.Name() != optimizers.GlobalStepVariableName
}

// writeSafetensors writes the model variables of ctx to path in the
// safetensors format: 8 bytes (little-endian) of header length, the JSON
// header mapping tensor names to dtype/shape/offsets, then the raw
// little-endian tensor data.
func writeSafetensors(path string, ctx *context.Context, metadata map[string]string) error {
	// Collect the model weights, sorted by name so the layout is stable.
	// Non-trainable state needed by inference (batch normalization averages)
	// is included, optimizer state (moments, learning rate, global step) is
	// not.
	var variables []*context.Variable
	for v := range ctx.IterVariables() {
		if !isModelVariable(v) {
			continue
		}
		variables = append(variables, v)
	}
	if len(variables) == 0 {
		return errors.New("no trainable variables to export")
	}
	sort.Slice(variables, func(i, j int) bool {
		return tensorName(variables[i]) < tensorName(variables[j])
	})

	header := make(map[string]any, len(variables)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}
	var offset int64
	for _, v := range variables {
		shape := v.Shape()
		dtypeName, err := safetensorsDType(shape.DType)
		if err != nil {
			return errors.WithMessagef(err, "variable %q", v.ScopeAndName())
		}
		size := int64(shape.Memory())
		header[tensorName(v)] = tensorInfo{
			DType:  dtypeName,
			Shape:  shape.Dimensions,
			Offset: [2]int64{offset, offset + size},
		}
		offset += size
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "failed to marshal safetensors header")
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", path)
	}
	closed := false
	defer func() {
		if !closed {
			_ = f.Close()
		}
	}()

	var headerLen [8]byte
	binary.LittleEndian.PutUint64(headerLen[:], uint64(len(headerBytes)))
	if _, err = f.Write(headerLen[:]); err == nil {
		_, err = f.Write(headerBytes)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to write safetensors header to %q", path)
	}

	for _, v := range variables {
		value, err := v.Value()
		if err != nil {
			return errors.WithMessagef(err, "reading variable %q", v.ScopeAndName())
		}
		var writeErr error
		err = value.ConstBytes(func(data []byte) {
			_, writeErr = f.Write(data)
		})
		if err == nil {
			err = writeErr
		}
		if err != nil {
			return errors.Wrapf(err, "failed to write tensor %q to %q", tensorName(v), path)
		}
	}

	err = f.Close()
	closed = true
	return errors.Wrapf(err, "failed to close %q", path)
}

// readSafetensorsHeader parses the header of a safetensors file, dropping the
// __metadata__ entry. Used to verify exported files.
func readSafetensorsHeader(path string) (map[string]tensorInfo, map[string]string, error) {
	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read %q", path)
	}
	if len(fileData) < 8 {
		return nil, nil, errors.Errorf("%q too small for a safetensors file", path)
	}
	headerSize := int64(binary.LittleEndian.Uint64(fileData[0:8]))
	if int64(len(fileData)) < 8+headerSize {
		return nil, nil, errors.Errorf("%q truncated: header claims %d bytes", path, headerSize)
	}
	var rawHeader map[string]json.RawMessage
	if err := json.Unmarshal(fileData[8:8+headerSize], &rawHeader); err != nil {
		return nil, nil, errors.Wrapf(err, "failed to parse safetensors header of %q", path)
	}
	var metadata map[string]string
	infos := make(map[string]tensorInfo, len(rawHeader))
	for name, raw := range rawHeader {
		if name == "__metadata__" {
			if err := json.Unmarshal(raw, &metadata); err != nil {
				return nil, nil, errors.Wrapf(err, "failed to parse __metadata__ of %q", path)
			}
			continue
		}
		var info tensorInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, nil, errors.Wrapf(err, "failed to parse tensor %q of %q", name, path)
		}
		infos[name] = info
	}
	return infos, metadata, nil
}
