package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a 5m cache
// breakpoint on the instructions.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "5m",
			},
		},
	}
}
