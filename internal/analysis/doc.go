// Package analysis summarizes stored run traces.
//
//   - [Spectrum] and [DominantFrequency]: oscillation content of one column,
//     for example contact jitter of a resting body
//   - [Summarize]: mean, spread and range of one column
//   - [Portrait]: one column plotted against another
//
// Columns come from storage.LoadStates:
//
//	header, states, _, _ := st.LoadStates(runID)
//	z, _ := analysis.Column(header, states, "box.z")
//	freq, _ := analysis.DominantFrequency(z, meta.Dt)
package analysis
