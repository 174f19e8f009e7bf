package msdoc

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/richardlehane/mscfb"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
)

const (
	wordMagic           = 0xA5EC
	flagEncrypted       = 0x0100
	flagWhichTable      = 0x0200
	fibBaseSize         = 32
	fcClxIndex          = 33
	ccpTextIndex        = 3
	compressedFlag      = 0x40000000
	clxPrc              = 0x01
	clxPcdt             = 0x02
	pieceDescriptorSize = 8
)

// Extractor reads the main text of legacy Word 97-2003 documents by walking
// the piece table stored in the compound file.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	streams, err := readStreams(data, "WordDocument", "0Table", "1Table")
	if err != nil {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "doc extract", err)
	}
	wordDoc := streams["WordDocument"]
	if len(wordDoc) == 0 {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "doc extract", errors.New("WordDocument stream not found"))
	}

	text, err := extractText(wordDoc, streams["0Table"], streams["1Table"])
	if err != nil {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "doc extract", err)
	}
	return text, nil
}

func readStreams(data []byte, names ...string) (map[string][]byte, error) {
	doc, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open compound file: %w", err)
	}
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}

	out := make(map[string][]byte, len(names))
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if !wanted[entry.Name] || len(entry.Path) > 0 {
			continue
		}
		raw, err := io.ReadAll(entry)
		if err != nil {
			return nil, fmt.Errorf("read %s stream: %w", entry.Name, err)
		}
		out[entry.Name] = raw
	}
	return out, nil
}

func extractText(wordDoc, table0, table1 []byte) (string, error) {
	fib, err := parseFIB(wordDoc)
	if err != nil {
		return "", err
	}
	table := table0
	if fib.whichTable {
		table = table1
	}
	if len(table) == 0 {
		return "", errors.New("table stream not found")
	}
	if uint64(fib.fcClx)+uint64(fib.lcbClx) > uint64(len(table)) || fib.lcbClx == 0 {
		return "", errors.New("piece table out of range")
	}

	pieces, err := parsePieceTable(table[fib.fcClx : fib.fcClx+fib.lcbClx])
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	remaining := int(fib.ccpText)
	for _, p := range pieces {
		if remaining <= 0 {
			break
		}
		chars := min(int(p.cpEnd-p.cpStart), remaining)
		text, err := p.decode(wordDoc, chars)
		if err != nil {
			return "", err
		}
		buf.WriteString(text)
		remaining -= chars
	}
	return cleanText(buf.String()), nil
}

type fib struct {
	whichTable bool
	ccpText    uint32
	fcClx      uint32
	lcbClx     uint32
}

func parseFIB(wordDoc []byte) (fib, error) {
	if len(wordDoc) < fibBaseSize+2 {
		return fib{}, errors.New("word document stream too short")
	}
	le := binary.LittleEndian
	if le.Uint16(wordDoc[0:2]) != wordMagic {
		return fib{}, errors.New("not a word document")
	}
	flags := le.Uint16(wordDoc[0x0A:0x0C])
	if flags&flagEncrypted != 0 {
		return fib{}, errors.New("encrypted documents are not supported")
	}

	pos := fibBaseSize
	csw := int(le.Uint16(wordDoc[pos:]))
	pos += 2 + csw*2
	if len(wordDoc) < pos+2 {
		return fib{}, errors.New("truncated file information block")
	}
	cslw := int(le.Uint16(wordDoc[pos:]))
	lwStart := pos + 2
	pos = lwStart + cslw*4
	if cslw <= ccpTextIndex || len(wordDoc) < pos+2 {
		return fib{}, errors.New("truncated file information block")
	}
	cbRgFcLcb := int(le.Uint16(wordDoc[pos:]))
	fcStart := pos + 2
	if cbRgFcLcb <= fcClxIndex || len(wordDoc) < fcStart+(fcClxIndex+1)*8 {
		return fib{}, errors.New("file information block has no piece table")
	}

	clx := fcStart + fcClxIndex*8
	return fib{
		whichTable: flags&flagWhichTable != 0,
		ccpText:    le.Uint32(wordDoc[lwStart+ccpTextIndex*4:]),
		fcClx:      le.Uint32(wordDoc[clx:]),
		lcbClx:     le.Uint32(wordDoc[clx+4:]),
	}, nil
}

type piece struct {
	cpStart    uint32
	cpEnd      uint32
	offset     uint32
	compressed bool
}

func (p piece) decode(wordDoc []byte, chars int) (string, error) {
	size := chars
	if !p.compressed {
		size = chars * 2
	}
	end := uint64(p.offset) + uint64(size)
	if end > uint64(len(wordDoc)) {
		return "", errors.New("text piece out of range")
	}
	raw := wordDoc[p.offset:end]
	var (
		out []byte
		err error
	)
	if p.compressed {
		out, err = charmap.Windows1252.NewDecoder().Bytes(raw)
	} else {
		out, err = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw)
	}
	if err != nil {
		return "", fmt.Errorf("decode text piece: %w", err)
	}
	return string(out), nil
}

// parsePieceTable skips property runs and reads the piece descriptors of the Clx.
func parsePieceTable(clx []byte) ([]piece, error) {
	le := binary.LittleEndian
	pos := 0
	for pos < len(clx) && clx[pos] == clxPrc {
		if pos+3 > len(clx) {
			return nil, errors.New("truncated property run")
		}
		pos += 3 + int(int16(le.Uint16(clx[pos+1:])))
	}
	if pos+5 > len(clx) || clx[pos] != clxPcdt {
		return nil, errors.New("piece table not found")
	}
	lcb := int(le.Uint32(clx[pos+1:]))
	plc := clx[pos+5:]
	if lcb > len(plc) || lcb < 4 || (lcb-4)%(4+pieceDescriptorSize) != 0 {
		return nil, errors.New("malformed piece table")
	}

	n := (lcb - 4) / (4 + pieceDescriptorSize)
	pieces := make([]piece, 0, n)
	descriptors := plc[(n+1)*4:]
	for i := 0; i < n; i++ {
		fc := le.Uint32(descriptors[i*pieceDescriptorSize+2:])
		p := piece{
			cpStart:    le.Uint32(plc[i*4:]),
			cpEnd:      le.Uint32(plc[(i+1)*4:]),
			compressed: fc&compressedFlag != 0,
		}
		if p.cpEnd < p.cpStart {
			return nil, errors.New("malformed piece boundaries")
		}
		if p.compressed {
			p.offset = (fc &^ compressedFlag) / 2
		} else {
			p.offset = fc
		}
		pieces = append(pieces, p)
	}
	return pieces, nil
}

// cleanText maps Word control characters to plain whitespace and drops
// field instructions, keeping the field results.
func cleanText(raw string) string {
	var buf strings.Builder
	// one entry per open field, true while inside its instruction part
	var fields []bool
	for _, r := range raw {
		switch r {
		case 0x13:
			fields = append(fields, true)
			continue
		case 0x14:
			if len(fields) > 0 {
				fields[len(fields)-1] = false
			}
			continue
		case 0x15:
			if len(fields) > 0 {
				fields = fields[:len(fields)-1]
			}
			continue
		}
		if slices.Contains(fields, true) {
			continue
		}
		switch r {
		case '\r', 0x0B, 0x0C:
			buf.WriteByte('\n')
		case 0x07:
			buf.WriteByte('\t')
		case '\t', '\n':
			buf.WriteRune(r)
		default:
			if r >= 0x20 {
				buf.WriteRune(r)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
