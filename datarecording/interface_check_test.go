package datarecording

var _ DataRecorder = (*sqliteWriter)(nil)

// SetBatchSize lets tests trigger automatic flushes with few entries.
func SetBatchSize(r DataRecorder, n int) {
	r.(*sqliteWriter).batchSize = n
}
