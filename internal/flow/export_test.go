package flow

// Wait дожидается текущего хода чата
func (s *Session) Wait() {
	s.conv.Wait()
}
