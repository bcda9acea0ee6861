package classifier

// Chunk описывает окно кластеризации: [Start, End) читается целиком,
// метки сохраняются только для [CoreStart, CoreEnd)
type Chunk struct {
	Start     int
	End       int
	CoreStart int
	CoreEnd   int
}

// PlanChunks режет [0, n) на ядра длиной size с перекрытием overlap с каждой
// стороны. Ядра покрывают диапазон ровно один раз и идут по порядку.
func PlanChunks(n, size, overlap int) []Chunk {
	if n <= 0 || size <= 0 {
		return nil
	}
	chunks := make([]Chunk, 0, (n+size-1)/size)
	for core := 0; core < n; core += size {
		coreEnd := min(core+size, n)
		chunks = append(chunks, Chunk{
			Start:     max(0, core-overlap),
			End:       min(n, coreEnd+overlap),
			CoreStart: core,
			CoreEnd:   coreEnd,
		})
	}
	return chunks
}
