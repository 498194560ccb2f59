// Package compress provides the compression codecs applied to definition cache
// snapshots.
//
// A snapshot payload is a MessagePack array of definition records. Definitions of one
// producer share names, units and tag keys, so the payload compresses well and a
// general-purpose codec is enough:
//   - None: payload stored as is
//   - Zstd: best ratio, the default for snapshots written to disk
//   - S2: fast with a good ratio
//   - LZ4: fastest decompression
//
// Every codec implements Codec:
//
//	codec, err := compress.GetCodec(format.CompressionZstd)
//	if err != nil {
//	    return err
//	}
//	packed, err := codec.Compress(payload)
//	...
//	payload, err = codec.Decompress(packed)
//
// Zstd uses github.com/klauspost/compress/zstd with pooled encoders and decoders. Build
// with the gozstd tag and cgo enabled to use the libzstd binding
// github.com/valyala/gozstd instead. Both produce standard zstd frames, so snapshots
// are interchangeable between builds.
//
// All codecs are safe for concurrent use.
package compress
