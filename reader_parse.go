package zipline

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/zipline/zipline/internal/sizing"
)

const (
	extAttrDirectoryBit uint32 = 0x10
)

// parseCentralDirectory walks the directory span [offset, offset+size)
// reading one fixed 46-byte record plus its variable tail per iteration,
// per §4.5 "Parse central directory".
func (r *Reader) parseCentralDirectory(offset, size int64, expectedCount uint64) ([]*Entry, error) {
	if offset < 0 || size < 0 || offset+size > r.source.Size() {
		return nil, newError(KindBadFormat, "parseCentralDirectory", fmt.Errorf("central directory span out of range"))
	}

	buf := make([]byte, size)
	if _, err := r.source.ReadAt(buf, offset); err != nil {
		return nil, newError(KindBadFormat, "parseCentralDirectory", err)
	}

	capHint, capErr := sizing.ToInt(expectedCount, fmt.Errorf("entry count overflow"))
	if capErr != nil {
		capHint = 0
	}
	entries := make([]*Entry, 0, capHint)

	pos := 0
	for pos < len(buf) {
		if pos+centralDirFixedSize > len(buf) {
			return nil, newError(KindBadFormat, "parseCentralDirectory", fmt.Errorf("truncated central directory record"))
		}
		rec := buf[pos:]
		if binary.LittleEndian.Uint32(rec[0:4]) != sigCentralDir {
			return nil, newError(KindBadFormat, "parseCentralDirectory", fmt.Errorf("bad central directory signature at offset %d", offset+int64(pos)))
		}

		entry, consumed, err := decodeCentralDirRecord(rec)
		if err != nil {
			return nil, err
		}
		entry.reader = r
		entries = append(entries, entry)
		pos += consumed
	}

	return entries, nil
}

// decodeCentralDirRecord decodes one central directory record starting at
// rec[0], returning the entry and the number of bytes it occupied
// (46 + filenameLen + extraLen + commentLen).
func decodeCentralDirRecord(rec []byte) (*Entry, int, error) {
	versionMadeBy := binary.LittleEndian.Uint16(rec[4:6])
	versionNeeded := binary.LittleEndian.Uint16(rec[6:8])
	flags := GeneralPurposeFlag(binary.LittleEndian.Uint16(rec[8:10]))
	method := Compression(binary.LittleEndian.Uint16(rec[10:12]))
	modTimeField := binary.LittleEndian.Uint16(rec[12:14])
	modDateField := binary.LittleEndian.Uint16(rec[14:16])
	crc := binary.LittleEndian.Uint32(rec[16:20])
	compSize32 := binary.LittleEndian.Uint32(rec[20:24])
	uncompSize32 := binary.LittleEndian.Uint32(rec[24:28])
	nameLen := binary.LittleEndian.Uint16(rec[28:30])
	extraLen := binary.LittleEndian.Uint16(rec[30:32])
	commentLen := binary.LittleEndian.Uint16(rec[32:34])
	externalAttrs := binary.LittleEndian.Uint32(rec[38:42])
	localOffset32 := binary.LittleEndian.Uint32(rec[42:46])

	tail := rec[centralDirFixedSize:]
	if len(tail) < int(nameLen)+int(extraLen)+int(commentLen) {
		return nil, 0, newError(KindBadFormat, "decodeCentralDirRecord", fmt.Errorf("truncated variable-length fields"))
	}
	nameRaw := tail[:nameLen]
	extraRaw := tail[nameLen : nameLen+extraLen]
	commentRaw := tail[nameLen+extraLen : nameLen+extraLen+commentLen]

	extras, err := parseExtraFields(extraRaw)
	if err != nil {
		return nil, 0, err
	}

	entry := &Entry{
		VersionMadeBy:     versionMadeBy,
		VersionNeeded:     versionNeeded,
		Flags:             flags,
		Method:            method,
		ModTime:           decodeDOSTime(modDateField, modTimeField),
		CRC32:             crc,
		CompressedSize:    uint64(compSize32),
		UncompressedSize:  uint64(uncompSize32),
		LocalHeaderOffset: uint64(localOffset32),
		NameRaw:           append([]byte{}, nameRaw...),
		CommentRaw:        append([]byte{}, commentRaw...),
		ExtraRaw:          append([]byte{}, extraRaw...),
		Extra:             extras,
	}
	entry.Name = decodeName(entry.NameRaw, flags)
	entry.Comment = decodeName(entry.CommentRaw, flags)
	entry.Directory = externalAttrs&extAttrDirectoryBit != 0 || strings.HasSuffix(entry.Name, "/")

	if err := resolveZip64(entry, extras); err != nil {
		return nil, 0, err
	}
	if err := resolveAES(entry, extras); err != nil {
		return nil, 0, err
	}

	return entry, centralDirFixedSize + int(nameLen) + int(extraLen) + int(commentLen), nil
}

// parseExtraFields decodes a sequence of (tagU16LE, sizeU16LE, bytes) into
// a map keyed by tag, per §4.5.
func parseExtraFields(raw []byte) (map[uint16]ExtraField, error) {
	fields := make(map[uint16]ExtraField)
	pos := 0
	for pos+4 <= len(raw) {
		tag := binary.LittleEndian.Uint16(raw[pos : pos+2])
		size := binary.LittleEndian.Uint16(raw[pos+2 : pos+4])
		pos += 4
		if pos+int(size) > len(raw) {
			return nil, newError(KindBadFormat, "parseExtraFields", fmt.Errorf("truncated extra field tag 0x%04x", tag))
		}
		fields[tag] = ExtraField{Tag: tag, Data: raw[pos : pos+int(size)]}
		pos += int(size)
	}
	return fields, nil
}

// resolveZip64 resolves 0xFFFFFFFF sentinels against the ZIP64 extra,
// consuming slots in the order they appear: {uncompressed, compressed,
// localOffset}, per the §3 invariant.
func resolveZip64(entry *Entry, extras map[uint16]ExtraField) error {
	field, ok := extras[extraTagZip64]
	needsZip64 := entry.UncompressedSize == 0xFFFFFFFF || entry.CompressedSize == 0xFFFFFFFF || entry.LocalHeaderOffset == 0xFFFFFFFF
	if !needsZip64 {
		return nil
	}
	if !ok {
		return newError(KindBadFormat, "resolveZip64", fmt.Errorf("zip64 sentinel without backing extra for %q", entry.Name))
	}

	data := field.Data
	zip64 := &Zip64Extra{}
	pos := 0
	take := func() (uint64, bool) {
		if pos+8 > len(data) {
			return 0, false
		}
		v := binary.LittleEndian.Uint64(data[pos : pos+8])
		pos += 8
		return v, true
	}

	if entry.UncompressedSize == 0xFFFFFFFF {
		v, ok := take()
		if !ok {
			return newError(KindBadFormat, "resolveZip64", fmt.Errorf("zip64 extra too short for uncompressed size"))
		}
		entry.UncompressedSize = v
		zip64.UncompressedSize = &v
	}
	if entry.CompressedSize == 0xFFFFFFFF {
		v, ok := take()
		if !ok {
			return newError(KindBadFormat, "resolveZip64", fmt.Errorf("zip64 extra too short for compressed size"))
		}
		entry.CompressedSize = v
		zip64.CompressedSize = &v
	}
	if entry.LocalHeaderOffset == 0xFFFFFFFF {
		v, ok := take()
		if !ok {
			return newError(KindBadFormat, "resolveZip64", fmt.Errorf("zip64 extra too short for local header offset"))
		}
		entry.LocalHeaderOffset = v
		zip64.LocalOffset = &v
	}
	entry.Zip64 = zip64
	return nil
}

// resolveAES detects the WinZip-AES extra (tag 0x9901): strength byte 4,
// inner compression method at bytes 5-6 LE. Strength must be 3 (AES-256);
// any other value fails unsupported-encryption. When bit 0 of the
// general-purpose flag is set, the central method must be the AES marker
// (0x63) and this extra must be present, per the §3 invariant.
func resolveAES(entry *Entry, extras map[uint16]ExtraField) error {
	field, hasAES := extras[extraTagAES]

	if entry.Flags.Encrypted() {
		if entry.Method != compressionAESWrap || !hasAES {
			return newError(KindUnsupportedCompression, "resolveAES", fmt.Errorf("encrypted flag set without AES marker/extra on %q", entry.Name))
		}
	}
	if !hasAES {
		return nil
	}

	data := field.Data
	if len(data) < 7 {
		return newError(KindBadFormat, "resolveAES", fmt.Errorf("truncated aes extra on %q", entry.Name))
	}
	vendorVersion := binary.LittleEndian.Uint16(data[0:2])
	var vendorID [2]byte
	copy(vendorID[:], data[2:4])
	strength := data[4]
	innerMethod := Compression(binary.LittleEndian.Uint16(data[5:7]))

	if strength != 3 {
		return newError(KindUnsupportedEncryption, "resolveAES", fmt.Errorf("aes strength %d unsupported on %q", strength, entry.Name))
	}

	entry.Encrypted = true
	entry.Method = innerMethod
	entry.AES = &AESExtra{
		VendorVersion: vendorVersion,
		VendorID:      vendorID,
		Strength:      strength,
		InnerMethod:   innerMethod,
	}
	return nil
}
