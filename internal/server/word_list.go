package server

// Word pools for memorable lobby names. They follow the avatar themes:
// critters, fruit, vehicles and buildings, plus a pool of modifiers.
var critters = []string{
	"puppy", "kitten", "mouse", "hamster", "bunny", "fox", "bear", "panda", "koala", "tiger",
	"otter", "hedgehog", "squirrel", "beaver", "ferret", "raccoon", "badger", "mole", "lamb", "fawn",
}

var fruit = []string{
	"apple", "pear", "orange", "lemon", "banana", "melon", "grape", "berry", "cherry", "plum",
	"mango", "kiwi", "peach", "apricot", "fig", "lime", "papaya", "quince", "guava", "date",
}

var vehicles = []string{
	"car", "taxi", "jeep", "bus", "trolley", "racer", "cruiser", "ambulance", "engine", "van",
	"scooter", "tram", "wagon", "buggy", "rocket", "glider", "barge", "ferry", "canoe", "sled",
}

var buildings = []string{
	"house", "cottage", "villa", "cabin", "tower", "mall", "office", "clinic", "bank", "castle",
	"barn", "hut", "lodge", "manor", "chalet", "bungalow", "shed", "loft", "palace", "mill",
}

var modifiers = []string{
	"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "silly", "jolly", "cozy", "shiny",
	"golden", "silver", "crimson", "emerald", "purple", "brave", "calm", "swift", "bouncy", "fuzzy",
}

var wordPools = [][]string{critters, fruit, vehicles, buildings, modifiers}
