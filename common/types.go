// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

// TextureStagingData holds RGBA pixel data for a texture pending GPU upload.
// Image decoding happens outside the renderer; callers hand over raw pixels.
type TextureStagingData struct {
	// Pixels is the byte slice representing the actual pixel data for the texture. It should be in RGBA format, with 4 bytes per pixel.
	Pixels []byte
	// Width is the width of the texture in pixels.
	Width uint32
	// Height is the height of the texture in pixels.
	Height uint32
}

// Checkerboard builds a two-colour RGBA checkerboard, used for fallback and demo textures.
//
// Parameters:
//   - size: width and height of the texture in pixels
//   - cell: edge length of one checker cell in pixels
//   - a, b: the two RGBA colours
//
// Returns:
//   - TextureStagingData: the generated pixel data
func Checkerboard(size, cell uint32, a, b [4]byte) TextureStagingData {
	if cell == 0 {
		cell = 1
	}
	pixels := make([]byte, 0, size*size*4)
	for y := range size {
		for x := range size {
			c := a
			if ((x/cell)+(y/cell))%2 == 1 {
				c = b
			}
			pixels = append(pixels, c[:]...)
		}
	}
	return TextureStagingData{Pixels: pixels, Width: size, Height: size}
}

// FlatNormalMap builds a normal map whose every texel encodes the tangent-space +Z normal.
//
// Parameters:
//   - size: width and height of the texture in pixels
//
// Returns:
//   - TextureStagingData: the generated pixel data
func FlatNormalMap(size uint32) TextureStagingData {
	pixels := make([]byte, 0, size*size*4)
	for range size * size {
		pixels = append(pixels, 128, 128, 255, 255)
	}
	return TextureStagingData{Pixels: pixels, Width: size, Height: size}
}
