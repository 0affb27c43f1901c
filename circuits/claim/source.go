package claim

import (
	"crypto/sha256"
	"encoding/binary"
	"embed"
	"io/fs"
	"sync"

	"github.com/vocdoni/zk-disclosure/types"
)

//go:embed claim.go fields.go
var sources embed.FS

// SourceDigest returns the digest of the circuit source files. Programs
// proven with the circuit fold it into their identity.
var SourceDigest = sync.OnceValue(func() types.Digest {
	return DigestFS(sources)
})

// DigestFS returns the SHA-256 digest of the names, sizes and contents of
// the files at the root of fsys, in lexical order.
func DigestFS(fsys fs.FS) types.Digest {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		panic(err)
	}
	h := sha256.New()
	for _, e := range entries {
		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			panic(err)
		}
		h.Write([]byte(e.Name()))
		h.Write(binary.BigEndian.AppendUint64(nil, uint64(len(data))))
		h.Write(data)
	}
	var d types.Digest
	copy(d[:], h.Sum(nil))
	return d
}
