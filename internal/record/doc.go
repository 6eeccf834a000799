// Package record implements the block format shared by every logical log.
//
// A block is carried in two buffers handed to the container together:
//
//	metadata (4096B): reserve | MetadataBlockHeader(16B) | StreamBlockHeader(72B) | payload...
//	payload  (n*4096B): remaining payload, rounded up to a page
//
// All integers are little-endian. The stream block header records where the
// payload sits in the log (StreamOffsetPlusOne), the operation number that
// produced it, the owning log id, the head truncation point at the time of
// writing and two CRC-64/ECMA checksums, one over the header and one over
// exactly DataSize payload bytes. HeaderCRC64 is zero only while the block
// is being filled.
//
// Writers fill a WriteBuffer with Put and call Seal once. Readers pass the
// carriers returned by the container to OpenForRead, which validates both
// checksums before any byte is served.
package record
