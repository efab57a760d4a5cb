// Package pdftest builds small single-font PDFs in memory for tests,
// optionally protected with the standard 40-bit RC4 security handler.
package pdftest

import (
	"bytes"
	"crypto/md5"
	"crypto/rc4"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

var passwordPad = []byte{
	0x28, 0xbf, 0x4e, 0x5e, 0x4e, 0x75, 0x8a, 0x41, 0x64, 0x00, 0x4e, 0x56, 0xff, 0xfa, 0x01, 0x08,
	0x2e, 0x2e, 0x00, 0xb6, 0xd0, 0x68, 0x3e, 0x80, 0x2f, 0x0c, 0xa9, 0xfe, 0x64, 0x53, 0x69, 0x7a,
}

// permissions flag: print + copy allowed.
var permissions int32 = -44

var fileID = []byte("session-rag-test")

// Plain returns an unencrypted PDF with one page per entry. Lines inside a
// page are separated by "\n".
func Plain(pages ...string) []byte {
	return build(pages, nil)
}

// Encrypted returns a PDF protected with the given user password. An empty
// password yields an encrypted file that opens without one.
func Encrypted(password string, pages ...string) []byte {
	o, u, key := securityValues(password)
	return build(pages, &security{
		dict: fmt.Sprintf("<< /Filter /Standard /V 1 /R 2 /Length 40 /P %d /O <%s> /U <%s> >>",
			permissions, hex.EncodeToString(o), hex.EncodeToString(u)),
		key: key,
	})
}

// AES256 returns a PDF whose encrypt dictionary uses the AES-256 standard
// security handler (V 5, R 6). Content streams are left in the clear, so the
// file is only useful for exercising the open path.
func AES256(pages ...string) []byte {
	return build(pages, &security{
		dict: fmt.Sprintf("<< /Filter /Standard /V 5 /R 6 /Length 256 /P %d /O <%s> /U <%s> /OE <%s> /UE <%s> /Perms <%s> >>",
			permissions,
			strings.Repeat("ab", 48), strings.Repeat("cd", 48),
			strings.Repeat("ef", 32), strings.Repeat("01", 32), strings.Repeat("23", 16)),
	})
}

type security struct {
	dict string
	key  []byte
}

type writer struct {
	buf     bytes.Buffer
	offsets []int
	key     []byte
}

func (w *writer) object(num int, body string) {
	w.offsets[num] = w.buf.Len()
	fmt.Fprintf(&w.buf, "%d 0 obj\n%s\nendobj\n", num, body)
}

func (w *writer) stream(num int, data []byte) {
	if w.key != nil {
		data = rc4Crypt(objectKey(w.key, num), data)
	}
	w.offsets[num] = w.buf.Len()
	fmt.Fprintf(&w.buf, "%d 0 obj\n<< /Length %d >>\nstream\n", num, len(data))
	w.buf.Write(data)
	w.buf.WriteString("\nendstream\nendobj\n")
}

func build(pages []string, sec *security) []byte {
	const (
		catalogObj = 1
		pagesObj   = 2
		fontObj    = 3
		encryptObj = 4
		firstPage  = 5
	)
	total := firstPage + 2*len(pages)
	w := &writer{offsets: make([]int, total)}

	if sec != nil {
		w.key = sec.key
	}

	w.buf.WriteString("%PDF-1.4\n")
	w.object(catalogObj, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj))

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", firstPage+2*i)
	}
	w.object(pagesObj, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	w.object(fontObj, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	if sec != nil {
		w.object(encryptObj, sec.dict)
	} else {
		w.object(encryptObj, "<< >>")
	}

	for i, text := range pages {
		pageNum := firstPage + 2*i
		w.object(pageNum, fmt.Sprintf(
			"<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>",
			pagesObj, fontObj, pageNum+1))
		w.stream(pageNum+1, contentStream(text))
	}

	xref := w.buf.Len()
	fmt.Fprintf(&w.buf, "xref\n0 %d\n", total)
	w.buf.WriteString("0000000000 65535 f \n")
	for _, off := range w.offsets[1:] {
		fmt.Fprintf(&w.buf, "%010d 00000 n \n", off)
	}

	id := hex.EncodeToString(fileID)
	trailer := fmt.Sprintf("<< /Size %d /Root %d 0 R /ID [<%s> <%s>]", total, catalogObj, id, id)
	if sec != nil {
		trailer += fmt.Sprintf(" /Encrypt %d 0 R", encryptObj)
	}
	fmt.Fprintf(&w.buf, "trailer\n%s >>\nstartxref\n%d\n%%%%EOF\n", trailer, xref)
	return w.buf.Bytes()
}

func contentStream(text string) []byte {
	var b strings.Builder
	b.WriteString("BT\n/F1 12 Tf\n14 TL\n72 720 Td\n")
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteString("T*\n")
		}
		if line == "" {
			continue
		}
		fmt.Fprintf(&b, "(%s) Tj\n", escape(line))
	}
	b.WriteString("ET\n")
	return []byte(b.String())
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

func pad(password string) []byte {
	p := append([]byte(password), passwordPad...)
	return p[:32]
}

// securityValues computes the O and U entries and the file key for revision 2.
func securityValues(password string) (o, u, key []byte) {
	ownerKey := md5.Sum(pad(password))
	o = rc4Crypt(ownerKey[:5], pad(password))

	h := md5.New()
	h.Write(pad(password))
	h.Write(o)
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], uint32(permissions))
	h.Write(p[:])
	h.Write(fileID)
	key = h.Sum(nil)[:5]

	u = rc4Crypt(key, passwordPad)
	return o, u, key
}

func objectKey(key []byte, num int) []byte {
	h := md5.New()
	h.Write(key)
	h.Write([]byte{byte(num), byte(num >> 8), byte(num >> 16), 0, 0})
	return h.Sum(nil)
}

func rc4Crypt(key, data []byte) []byte {
	c, err := rc4.NewCipher(key)
	if err != nil {
		panic(err)
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}
