package receipt

import "github.com/vocdoni/gofirma/receiptsync/internal/crypto/der"

// Locate searches the tree under root for an OBJECT IDENTIFIER equal to want
// and returns the sibling that immediately follows it. The OID children of a
// container are checked before descending into its other children. Nil is
// returned when no such pair exists.
func Locate(root *der.Container, want der.ObjectIdentifier) *der.Container {
	if root == nil || !root.Constructed {
		return nil
	}
	for i, child := range root.Children {
		if !child.IsOID() {
			continue
		}
		oid, err := der.ParseOID(child.Content)
		if err != nil || !oid.Equal(want) {
			continue
		}
		if i+1 < len(root.Children) {
			return root.Children[i+1]
		}
	}
	for _, child := range root.Children {
		if child.IsOID() {
			continue
		}
		if found := Locate(child, want); found != nil {
			return found
		}
	}
	return nil
}
