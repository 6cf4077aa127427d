package zipline

import (
	"encoding/binary"
	"fmt"
)

// Close writes the central directory, the optional ZIP64 end-of-central-
// directory record and locator, and the end-of-central-directory record,
// then marks the writer closed. No further Add calls are accepted after
// Close returns, successfully or not.
func (w *Writer) Close(comment string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return newError(KindBadFormat, "Close", fmt.Errorf("writer already closed"))
	}
	w.closed = true
	pending := w.pending
	cdStart := w.offset
	w.mu.Unlock()

	commentRaw := []byte(comment)
	if len(commentRaw) > maxCommentLength {
		return newError(KindCommentTooLong, "Close", fmt.Errorf("comment is %d bytes, max %d", len(commentRaw), maxCommentLength))
	}

	var cdSize uint64
	for _, e := range pending {
		rec := buildCentralDirRecord(e)
		n, err := w.sink.Write(rec)
		if err != nil {
			return newError(KindBadFormat, "Close", err)
		}
		cdSize += uint64(n)
	}

	needZip64 := w.zip64 ||
		len(pending) >= zip64EntryThreshold ||
		cdStart >= zip64Threshold ||
		cdSize >= zip64Threshold

	if needZip64 {
		zip64EOCDOffset := cdStart + cdSize
		if err := w.writeZip64EOCD(uint64(len(pending)), cdSize, cdStart); err != nil {
			return err
		}
		if err := w.writeZip64Locator(zip64EOCDOffset); err != nil {
			return err
		}
	}

	return w.writeEOCD(len(pending), cdSize, cdStart, commentRaw)
}

// buildCentralDirRecord serialises one 46-byte fixed record plus its
// filename/extra/comment tail, backfilling the real CRC/sizes/offset that
// the corresponding local header only carried placeholders for.
func buildCentralDirRecord(e *pendingEntry) []byte {
	method := CompressionStore
	switch {
	case e.encrypted:
		method = compressionAESWrap
	case e.compressed:
		method = CompressionDeflate
	}

	version := uint16(0x14)
	if e.zip64 {
		version = 0x2D
	}
	if e.encrypted {
		version = 0x33
	}

	flags := flagUTF8
	if e.hasDescriptor {
		flags |= flagSizesInDescriptor
	}
	if e.encrypted {
		flags |= flagEncrypted
	}

	date, timeField := dosDateTime(e.modTime)

	compSize32, uncompSize32, localOffset32 := uint32(e.compSize), uint32(e.uncompSize), uint32(e.localOffset)
	if e.zip64 {
		compSize32, uncompSize32, localOffset32 = zip64Threshold, zip64Threshold, zip64Threshold
	}

	var extras []byte
	if e.zip64 {
		uncomp, comp, off := e.uncompSize, e.compSize, e.localOffset
		extras = append(extras, buildZip64Extra(&uncomp, &comp, &off)...)
	}
	if e.encrypted {
		innerMethod := CompressionStore
		if e.compressed {
			innerMethod = CompressionDeflate
		}
		extras = append(extras, buildAESExtra(innerMethod)...)
	}
	extras = append(extras, e.extraRaw...)

	var externalAttrs uint32
	if e.directory {
		externalAttrs = extAttrDirectoryBit
	}

	buf := make([]byte, centralDirFixedSize)
	binary.LittleEndian.PutUint32(buf[0:4], sigCentralDir)
	binary.LittleEndian.PutUint16(buf[4:6], version)
	binary.LittleEndian.PutUint16(buf[6:8], version)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(flags))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(method))
	binary.LittleEndian.PutUint16(buf[12:14], timeField)
	binary.LittleEndian.PutUint16(buf[14:16], date)
	binary.LittleEndian.PutUint32(buf[16:20], e.crc32)
	binary.LittleEndian.PutUint32(buf[20:24], compSize32)
	binary.LittleEndian.PutUint32(buf[24:28], uncompSize32)
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(e.nameRaw)))
	binary.LittleEndian.PutUint16(buf[30:32], uint16(len(extras)))
	// e.comment is already bounded to 65535 bytes by Add's up-front
	// KindCommentTooLong check, so this cast never truncates.
	binary.LittleEndian.PutUint16(buf[32:34], uint16(len(e.comment)))
	binary.LittleEndian.PutUint16(buf[34:36], 0) // disk number
	binary.LittleEndian.PutUint16(buf[36:38], 0) // internal attrs
	binary.LittleEndian.PutUint32(buf[38:42], externalAttrs)
	binary.LittleEndian.PutUint32(buf[42:46], localOffset32)

	buf = append(buf, e.nameRaw...)
	buf = append(buf, extras...)
	buf = append(buf, []byte(e.comment)...)
	return buf
}

func (w *Writer) writeZip64EOCD(entryCount, cdSize, cdOffset uint64) error {
	buf := make([]byte, zip64EOCDFixedSize)
	binary.LittleEndian.PutUint32(buf[0:4], sigZip64EOCD)
	binary.LittleEndian.PutUint64(buf[4:12], zip64EOCDFixedSize-12) // record size excluding sig+size field
	binary.LittleEndian.PutUint16(buf[12:14], 0x2D)                 // version made by
	binary.LittleEndian.PutUint16(buf[14:16], 0x2D)                 // version needed
	binary.LittleEndian.PutUint32(buf[16:20], 0)                    // disk number
	binary.LittleEndian.PutUint32(buf[20:24], 0)                    // disk with central directory
	binary.LittleEndian.PutUint64(buf[24:32], entryCount)           // entries on this disk
	binary.LittleEndian.PutUint64(buf[32:40], entryCount)           // total entries
	binary.LittleEndian.PutUint64(buf[40:48], cdSize)
	binary.LittleEndian.PutUint64(buf[48:56], cdOffset)
	_, err := w.sink.Write(buf)
	if err != nil {
		return newError(KindBadFormat, "Close", err)
	}
	return nil
}

func (w *Writer) writeZip64Locator(zip64EOCDOffset uint64) error {
	buf := make([]byte, zip64LocatorSize)
	binary.LittleEndian.PutUint32(buf[0:4], sigZip64Locator)
	binary.LittleEndian.PutUint32(buf[4:8], 0) // disk with zip64 eocd
	binary.LittleEndian.PutUint64(buf[8:16], zip64EOCDOffset)
	binary.LittleEndian.PutUint32(buf[16:20], 1) // total disks
	if _, err := w.sink.Write(buf); err != nil {
		return newError(KindBadFormat, "Close", err)
	}
	return nil
}

func (w *Writer) writeEOCD(entryCount int, cdSize, cdOffset uint64, comment []byte) error {
	entryCount16 := uint16(entryCount)
	cdSize32 := uint32(cdSize)
	cdOffset32 := uint32(cdOffset)
	if entryCount >= zip64EntryThreshold {
		entryCount16 = 0xFFFF
	}
	if cdSize >= zip64Threshold {
		cdSize32 = zip64Threshold
	}
	if cdOffset >= zip64Threshold {
		cdOffset32 = zip64Threshold
	}

	buf := make([]byte, eocdFixedSize+len(comment))
	binary.LittleEndian.PutUint32(buf[0:4], sigEOCD)
	binary.LittleEndian.PutUint16(buf[4:6], 0)  // disk number
	binary.LittleEndian.PutUint16(buf[6:8], 0)  // disk with central directory
	binary.LittleEndian.PutUint16(buf[8:10], entryCount16)
	binary.LittleEndian.PutUint16(buf[10:12], entryCount16)
	binary.LittleEndian.PutUint32(buf[12:16], cdSize32)
	binary.LittleEndian.PutUint32(buf[16:20], cdOffset32)
	binary.LittleEndian.PutUint16(buf[20:22], uint16(len(comment)))
	copy(buf[22:], comment)

	if _, err := w.sink.Write(buf); err != nil {
		return newError(KindBadFormat, "Close", err)
	}
	return nil
}
