package catalog

// defaultTerms is the built-in phrase list. Order is stable; sampling never
// depends on it.
var defaultTerms = []string{
	"interior design",
	"wedding planning",
	"small business ideas",
	"parenting tips",
	"retirement planning",
	"online courses",
	"digital marketing",
	"podcast recommendations",
	"yoga poses",
	"wine tasting",
	"budget travel",
	"freelancing opportunities",
	"sustainable fashion",
	"plant-based recipes",
	"graphic design",
	"social media trends",
	"public speaking",
	"time management",
	"creative writing",
	"outdoor activities",
	"antique collecting",
	"skincare routines",
	"jewelry making",
	"woodworking projects",
	"beard grooming",
	"nail art",
	"hairstyle trends",
	"makeup tutorials",
	"board game reviews",
	"puzzle solutions",
	"craft beer",
	"coffee brewing",
	"tea ceremonies",
	"cheese making",
	"bread baking",
	"fermentation",
	"urban planning",
	"architecture styles",
	"real estate trends",
	"rental property",
	"insurance options",
	"tax strategies",
	"scholarship opportunities",
	"study abroad",
	"networking events",
	"job interviews",
	"resume writing",
	"salary negotiation",
	"workplace productivity",
	"team building",
	"leadership skills",
	"conflict resolution",
	"customer service",
	"sales techniques",
	"marketing automation",
	"content creation",
	"SEO strategies",
	"web development",
	"database design",
	"cloud computing",
	"machine learning",
	"data visualization",
	"statistical analysis",
	"research methods",
	"academic writing",
	"scientific publications",
	"patent applications",
	"innovation management",
	"startup funding",
	"venture capital",
	"crowdfunding",
	"business partnerships",
	"supply chain",
	"logistics management",
	"quality control",
	"project management",
	"risk assessment",
	"compliance regulations",
	"environmental law",
	"intellectual property",
	"contract negotiation",
	"dispute resolution",
	"mediation services",
	"legal research",
	"court procedures",
	"immigration law",
	"family law",
	"estate planning",
	"elder care",
	"disability resources",
	"addiction recovery",
	"grief counseling",
	"relationship advice",
	"dating tips",
	"marriage counseling",
	"child development",
	"educational psychology",
	"learning disabilities",
	"special needs support",
	"autism resources",
	"ADHD management",
	"anxiety treatment",
	"depression help",
}
