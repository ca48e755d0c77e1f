package matcher

import (
	"os"
	"path/filepath"
	"testing"

	"taxonmatch/internal/taxonomy"
)

// testTaxonomy is the shared fixture for this package. It mixes species
// rows, a dedicated genus row, a family-only row, and a merged duplicate.
const testTaxonomy = `
g1;aves;passeriformes;certhiidae;certhia;americana;brown creeper
g2;aves;piciformes;picidae;picoides;;
g3;aves;piciformes;picidae;picoides;arcticus;black-backed woodpecker
g4;aves;passeriformes;corvidae;perisoreus;canadensis;gray jay
g5;aves;accipitriformes;accipitridae;haliaeetus;leucocephalus;bald eagle
g6;mammalia;carnivora;mustelidae;mustela;erminea;stoat
g7;mammalia;carnivora;mustelidae;;;
g8;mammalia;artiodactyla;cervidae;odocoileus;virginianus;white-tailed deer
`

func testIndex(t *testing.T) *taxonomy.Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taxonomy.txt")
	if err := os.WriteFile(path, []byte(testTaxonomy), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	ix, err := taxonomy.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return ix
}
