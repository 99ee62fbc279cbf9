package engine

// Built-in catalogs used to seed a fresh store. The customer draws a
// buyer persona from the roles; the seller builds a two-word product
// from the words.

func DefaultRoleNames() []string {
	return []string{
		"Pirate Captain",
		"Kindergarten Teacher",
		"Astronaut",
		"Retired Wrestler",
		"Wedding Planner",
		"Ghost Hunter",
		"Royal Butler",
		"Storm Chaser",
		"Circus Ringmaster",
		"Deep Sea Diver",
		"Conspiracy Theorist",
		"Park Ranger",
		"Food Critic",
		"Cat Burglar",
		"Time Traveler",
		"Lighthouse Keeper",
	}
}

func DefaultWordList() []string {
	return []string{
		"rocket", "cheese", "umbrella", "magnet", "pillow",
		"laser", "bucket", "whistle", "blanket", "anchor",
		"candle", "mirror", "trampoline", "helmet", "ladder",
		"balloon", "compass", "hammock", "kettle", "parachute",
		"shovel", "lantern", "saddle", "telescope", "wagon",
		"feather", "engine", "cactus", "bell", "rope",
		"glitter", "toaster", "snorkel", "drum", "fan",
		"glue", "sponge", "turbine", "net", "visor",
	}
}
