package resolver

// BufferPolicy is the playback buffering configuration handed to the player
// alongside a resolution result.
type BufferPolicy struct {
	MinBufferMs                      int `json:"min_buffer_ms"`
	MaxBufferMs                      int `json:"max_buffer_ms"`
	BufferForPlaybackMs              int `json:"buffer_for_playback_ms"`
	BufferForPlaybackAfterRebufferMs int `json:"buffer_for_playback_after_rebuffer_ms"`
}

// BufferPolicyFor maps a network quality to a fixed buffer tuple. Weaker
// networks get larger buffers to ride out throughput dips.
func BufferPolicyFor(quality NetworkQuality) BufferPolicy {
	switch quality {
	case NetworkGood:
		return BufferPolicy{
			MinBufferMs:                      20000,
			MaxBufferMs:                      60000,
			BufferForPlaybackMs:              3000,
			BufferForPlaybackAfterRebufferMs: 6000,
		}
	case NetworkPoor:
		return BufferPolicy{
			MinBufferMs:                      30000,
			MaxBufferMs:                      75000,
			BufferForPlaybackMs:              4000,
			BufferForPlaybackAfterRebufferMs: 8000,
		}
	default:
		return BufferPolicy{
			MinBufferMs:                      15000,
			MaxBufferMs:                      50000,
			BufferForPlaybackMs:              2500,
			BufferForPlaybackAfterRebufferMs: 5000,
		}
	}
}
