package market

// Capacity planning for creator accounts. The formula mirrors the record's
// worst-case encoding: a fixed header plus a fixed per-item budget plus the
// profile locator. It deliberately over-provisions (titles and locators are
// budgeted at their maximums) because growing too little is a fatal resize
// failure while growing too much merely costs rent.
const (
	creatorBaseSize   = 44  // header: owner + counter + list prefix
	contentItemSize   = 244 // per item: id + title budget + price + locator budget
	maxTitleLength    = 128
	maxLocatorLength  = 100
	maxProfileLocator = 256
)

// CreatorAccountSize returns the planned byte footprint of a creator account
// holding the given number of items and profile locator length.
func CreatorAccountSize(items int, profileLen int) uint64 {
	return uint64(creatorBaseSize + items*contentItemSize + profileLen)
}
