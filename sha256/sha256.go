// Package sha256 selects the accelerated SIMD sha256 from minio where the
// hardware supports it, behind the same call shapes as crypto/sha256.
package sha256

import (
	"github.com/minio/sha256-simd"
)

const Size = sha256.Size

var (
	New    = sha256.New
	Sum256 = sha256.Sum256
)
