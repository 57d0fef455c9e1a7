package mesh

// StoreBuilderOption is a functional option applied to a store during construction via NewStore.
type StoreBuilderOption func(*storeImpl)

// WithLabel sets the prefix of the store's GPU buffer labels.
//
// Parameters:
//   - label: the label prefix
//
// Returns:
//   - StoreBuilderOption: a function that sets the store's label
func WithLabel(label string) StoreBuilderOption {
	return func(s *storeImpl) {
		s.label = label
	}
}

// WithCapacity pre-sizes the CPU arrays for the expected total vertex and index counts.
//
// Parameters:
//   - vertices: expected number of vertices
//   - indices: expected number of indices
//
// Returns:
//   - StoreBuilderOption: a function that reserves capacity in the store
func WithCapacity(vertices, indices int) StoreBuilderOption {
	return func(s *storeImpl) {
		s.positions = make([]float32, 0, vertices*attributeComponents[AttributePosition])
		s.normals = make([]float32, 0, vertices*attributeComponents[AttributeNormal])
		s.tangents = make([]float32, 0, vertices*attributeComponents[AttributeTangent])
		s.texcoords = make([]float32, 0, vertices*attributeComponents[AttributeTexCoord])
		s.indices = make([]uint16, 0, indices)
	}
}
