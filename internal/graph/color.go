package graph

// PublicColor is used for the public schema.
const PublicColor = "#FFF"

// Palette holds tints of Columbia blue, indexed by schema hash.
var Palette = []string{
	"#b9d9eb",
	"#a7c3d4",
	"#94aebc",
	"#8298a5",
}

// SchemaColor maps a schema name onto the palette by the sum of its bytes.
// Distinct schemas may share a color.
func SchemaColor(schema string) string {
	if schema == "public" {
		return PublicColor
	}
	sum := 0
	for i := 0; i < len(schema); i++ {
		sum += int(schema[i])
	}
	return Palette[sum%len(Palette)]
}
