// Package bundle moves an ordered chain of blocks between stores as a tar
// archive.
//
// The archive starts with manifest.cbor, a canonical CBOR Manifest naming the
// ref, its head and every block in order. The blocks follow as
// blocks/<cid>, in manifest order. Headers are normalized so the same chain
// always produces the same bytes.
package bundle

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/libreg/cidutil"
	"xdao.co/libreg/codec"
	"xdao.co/libreg/storage"
)

// FormatVersion is the current manifest schema version.
const FormatVersion = 2

const (
	manifestName = "manifest.cbor"
	blockPrefix  = "blocks/"
)

var (
	ErrNoManifest = errors.New("bundle: archive does not start with " + manifestName)
	ErrIncomplete = errors.New("bundle: archive is missing blocks")
)

var epoch0 = time.Unix(0, 0).UTC()

// Block is one manifest row.
type Block struct {
	CID  string `cbor:"cid" json:"cid"`
	Size int    `cbor:"size" json:"size"`
}

// Manifest describes an archive. Head is the CID the ref pointed at when the
// archive was written, normally the last block.
type Manifest struct {
	Version int     `cbor:"version" json:"version"`
	Ref     string  `cbor:"ref" json:"ref"`
	Head    string  `cbor:"head" json:"head"`
	Blocks  []Block `cbor:"blocks" json:"blocks"`
}

// HeadCID decodes Head.
func (m Manifest) HeadCID() (cid.Cid, error) {
	id, err := cid.Decode(m.Head)
	if err != nil {
		return cid.Undef, storage.ErrInvalidCID
	}
	return id, nil
}

// Export writes ids, in order, to w. head must be one of ids.
func Export(w io.Writer, cas storage.CAS, ref string, head cid.Cid, ids []cid.Cid) error {
	if cas == nil {
		return fmt.Errorf("bundle: nil CAS")
	}
	if err := storage.CheckRefName(ref); err != nil {
		return err
	}

	m := Manifest{Version: FormatVersion, Ref: ref, Head: head.String(), Blocks: make([]Block, 0, len(ids))}
	payloads := make([][]byte, 0, len(ids))
	seen := make(map[cid.Cid]struct{}, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("bundle: duplicate block %s", id)
		}
		seen[id] = struct{}{}
		b, err := cas.Get(id)
		if err != nil {
			return err
		}
		if err := cidutil.Verify(id, b); err != nil {
			return storage.ErrCIDMismatch
		}
		m.Blocks = append(m.Blocks, Block{CID: id.String(), Size: len(b)})
		payloads = append(payloads, b)
	}
	if _, ok := seen[head]; !ok {
		return fmt.Errorf("bundle: head %s is not among the exported blocks", head)
	}

	mb, err := codec.Marshal(m)
	if err != nil {
		return fmt.Errorf("bundle: encode manifest: %w", err)
	}
	tw := tar.NewWriter(w)
	if err := writeFile(tw, manifestName, mb); err != nil {
		_ = tw.Close()
		return err
	}
	for i, b := range payloads {
		if err := writeFile(tw, blockPrefix+m.Blocks[i].CID, b); err != nil {
			_ = tw.Close()
			return err
		}
	}
	return tw.Close()
}

// Import reads an archive from r into cas and returns its manifest. Every
// block must appear exactly once, in manifest order, and hash to its name.
// Blocks already written stay in cas when Import fails; refs are never
// touched.
func Import(r io.Reader, cas storage.CAS) (Manifest, error) {
	if cas == nil {
		return Manifest{}, fmt.Errorf("bundle: nil CAS")
	}
	tr := tar.NewReader(r)

	h, err := tr.Next()
	if err == io.EOF {
		return Manifest{}, ErrNoManifest
	}
	if err != nil {
		return Manifest{}, err
	}
	if cleanTarPath(h.Name) != manifestName || h.Typeflag != tar.TypeReg {
		return Manifest{}, ErrNoManifest
	}
	m, err := readManifest(tr)
	if err != nil {
		return Manifest{}, err
	}

	next := 0
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return m, err
		}
		name := cleanTarPath(h.Name)
		if h.Typeflag != tar.TypeReg || !strings.HasPrefix(name, blockPrefix) {
			return m, fmt.Errorf("bundle: unexpected entry %q", h.Name)
		}
		if next >= len(m.Blocks) {
			return m, fmt.Errorf("bundle: block %s not in manifest", strings.TrimPrefix(name, blockPrefix))
		}
		want := m.Blocks[next]
		if strings.TrimPrefix(name, blockPrefix) != want.CID {
			return m, fmt.Errorf("bundle: block %d is %s, manifest expects %s", next, strings.TrimPrefix(name, blockPrefix), want.CID)
		}
		id, err := cid.Decode(want.CID)
		if err != nil {
			return m, storage.ErrInvalidCID
		}
		payload, err := io.ReadAll(io.LimitReader(tr, int64(want.Size)+1))
		if err != nil {
			return m, err
		}
		if len(payload) != want.Size {
			return m, fmt.Errorf("bundle: block %s has %d bytes, manifest says %d", want.CID, len(payload), want.Size)
		}
		if err := cidutil.Verify(id, payload); err != nil {
			return m, storage.ErrCIDMismatch
		}
		got, err := cas.Put(payload)
		if err != nil {
			return m, err
		}
		if got != id {
			return m, storage.ErrCIDMismatch
		}
		next++
	}
	if next != len(m.Blocks) {
		return m, fmt.Errorf("%w: got %d of %d", ErrIncomplete, next, len(m.Blocks))
	}
	return m, nil
}

func readManifest(r io.Reader) (Manifest, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := codec.Unmarshal(b, &m); err != nil {
		return Manifest{}, fmt.Errorf("bundle: invalid manifest: %w", err)
	}
	if m.Version != FormatVersion {
		return Manifest{}, fmt.Errorf("bundle: unsupported manifest version %d", m.Version)
	}
	if err := storage.CheckRefName(m.Ref); err != nil {
		return Manifest{}, fmt.Errorf("bundle: manifest ref: %w", err)
	}
	if _, err := m.HeadCID(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

// cleanTarPath returns "" for absolute, empty or dot-segment names.
func cleanTarPath(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = strings.TrimPrefix(name, "./")
	if name == "" || strings.HasPrefix(name, "/") {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
