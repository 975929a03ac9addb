// Package serialization reads and writes reweighter state in the
// SafeTensors format.
//
//	Format Structure:
//	  [8 bytes: Header Size (uint64 LE)]
//	  [Header: JSON object, one entry per tensor plus "__metadata__"]
//	  [Tensor data: raw little-endian bytes, tensors sorted by name]
//
// Tensors may be stored as F32, F64 or F16. F16 is a storage type only:
// it is widened to float32 when read. The writer records a SHA-256
// checksum of the data section in the metadata and the reader verifies
// it when present.
//
// Example usage:
//
//	state := module.StateDict()
//	err := serialization.WriteSafeTensors("params.safetensors", state,
//	    map[string]string{"module": "single"}, tensor.Float16)
//
//	file, err := serialization.ReadSafeTensors("params.safetensors")
//	err = module.LoadStateDict(file.Tensors)
package serialization
